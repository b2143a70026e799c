// Package payments holds the payment-processor abstraction: a shared
// contract every backend adapter implements, a registry of adapters, and
// the per-company selector that routes a charge to a backend.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Channel is the payment-collection context that constrains which backend
// may handle a charge.
type Channel string

const (
	ChannelOnline      Channel = "online"
	ChannelCardPresent Channel = "card_present"
	ChannelTapToPay    Channel = "tap_to_pay"
	ChannelAch         Channel = "ach"
)

// ProcessStatus is the backend's view of a charge.
type ProcessStatus string

const (
	ProcessStatusSucceeded      ProcessStatus = "succeeded"
	ProcessStatusRequiresAction ProcessStatus = "requires_action"
	ProcessStatusFailed         ProcessStatus = "failed"
	ProcessStatusProcessing     ProcessStatus = "processing"
)

// ProcessRequest is what the ingestion pipeline hands an adapter.
// Amount is in minor currency units. IdempotencyKey is the submission's
// client id, forwarded so the backend can dedupe on its side too.
type ProcessRequest struct {
	CompanyId      string
	IdempotencyKey string
	Amount         int64
	Currency       string
	Channel        Channel
	PaymentData    json.RawMessage
	Metadata       map[string]string
}

// ProcessResult is returned for every charge attempt. Ordinary declines are
// NOT errors: Success=false with a FailureCode. Only transport-level
// failures surface as an error from ProcessPayment.
type ProcessResult struct {
	Success                bool           `json:"success"`
	Status                 ProcessStatus  `json:"status"`
	TransactionId          string         `json:"transaction_id,omitempty"`
	ProcessorTransactionId string         `json:"processor_transaction_id,omitempty"`
	ClientSecret           string         `json:"client_secret,omitempty"`
	FailureCode            string         `json:"failure_code,omitempty"`
	FailureMessage         string         `json:"failure_message,omitempty"`
	ProcessorMetadata      map[string]any `json:"processor_metadata,omitempty"`
}

// RefundRequest asks for a partial or full refund of a prior transaction.
// A nil Amount means "full remaining balance"; the caller computes and
// pins the concrete amount before any processor call.
type RefundRequest struct {
	CompanyId     string
	TransactionId string
	Amount        *int64
	Currency      string
	Reason        string
}

type RefundResult struct {
	Success        bool   `json:"success"`
	RefundId       string `json:"refund_id,omitempty"`
	Amount         int64  `json:"amount"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// StatusResult is the reconciliation-polling view of a transaction.
type StatusResult struct {
	Status   ProcessStatus  `json:"status"`
	Amount   int64          `json:"amount"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Processor is the contract every payment backend adapter implements.
type Processor interface {
	Type() string
	SupportedChannels() []Channel
	ProcessPayment(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	RefundPayment(ctx context.Context, req *RefundRequest) (*RefundResult, error)
	GetPaymentStatus(ctx context.Context, transactionId string) (*StatusResult, error)
	// VerifyWebhook reports whether signature authenticates payload under
	// the backend's signing scheme. It returns false (never panics or
	// errors) when no secret is configured: fail closed.
	VerifyWebhook(payload []byte, signature string) bool
}

// Config carries per-company credentials into an adapter.
type Config struct {
	CompanyId     string
	MerchantId    string
	ApiKey        string
	ApiSecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// Factory builds a Processor bound to one company's credentials.
type Factory func(cfg Config) Processor

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a factory under a processor type name. Adapters
// register themselves from init().
func Register(processorType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[processorType] = f
}

// New builds an adapter by registered type name.
func New(processorType string, cfg Config) (Processor, error) {
	registryMu.RLock()
	f, ok := registry[processorType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown processor type %q", processorType)
	}
	return f(cfg), nil
}

// SupportsChannel is a small helper over a channel list.
func SupportsChannel(channels []Channel, channel Channel) bool {
	for _, ch := range channels {
		if ch == channel {
			return true
		}
	}
	return false
}

var ErrNotConfigured = errors.New("processor not configured")
