package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/sirupsen/logrus"
)

// TypeFortisPay is the card-present / online / tap-to-pay terminal backend.
const TypeFortisPay = "fortispay"

func init() {
	Register(TypeFortisPay, func(cfg Config) Processor {
		return &FortisPay{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	})
}

type FortisPay struct {
	cfg  Config
	http *http.Client
}

func (p *FortisPay) Type() string { return TypeFortisPay }

func (p *FortisPay) SupportedChannels() []Channel {
	return []Channel{ChannelOnline, ChannelCardPresent, ChannelTapToPay}
}

type fortisChargeRequest struct {
	MerchantId     string          `json:"merchant_id"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
	PaymentMethod  json.RawMessage `json:"payment_method"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type fortisTransaction struct {
	Id            string         `json:"id"`
	Status        string         `json:"status"`
	Amount        int64          `json:"amount"`
	ClientSecret  string         `json:"client_secret"`
	DeclineCode   string         `json:"decline_code"`
	DeclineReason string         `json:"decline_reason"`
	Extra         map[string]any `json:"extra"`
}

func (p *FortisPay) ProcessPayment(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	body := fortisChargeRequest{
		MerchantId:     p.cfg.MerchantId,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		PaymentMethod:  req.PaymentData,
		Metadata:       req.Metadata,
	}

	var txn fortisTransaction
	status, err := p.post(ctx, "/v1/transactions", body, &txn)
	if err != nil {
		return nil, err
	}

	// 402 is the decline status; everything else 4xx means the request
	// itself was bad and will not improve on retry.
	if status == http.StatusPaymentRequired || txn.Status == "declined" {
		return &ProcessResult{
			Success:        false,
			Status:         ProcessStatusFailed,
			FailureCode:    nonEmpty(txn.DeclineCode, "card_declined"),
			FailureMessage: txn.DeclineReason,
		}, nil
	}
	if status >= 400 {
		return &ProcessResult{
			Success:        false,
			Status:         ProcessStatusFailed,
			FailureCode:    "invalid_request",
			FailureMessage: fmt.Sprintf("fortispay returned status %d", status),
		}, nil
	}

	result := &ProcessResult{
		TransactionId:          txn.Id,
		ProcessorTransactionId: txn.Id,
		ClientSecret:           txn.ClientSecret,
		ProcessorMetadata:      txn.Extra,
	}
	switch txn.Status {
	case "approved", "captured":
		result.Success = true
		result.Status = ProcessStatusSucceeded
	case "requires_action":
		result.Success = true
		result.Status = ProcessStatusRequiresAction
	default:
		result.Success = true
		result.Status = ProcessStatusProcessing
	}
	return result, nil
}

func (p *FortisPay) RefundPayment(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"merchant_id": p.cfg.MerchantId,
		"reason":      req.Reason,
	}
	if req.Amount != nil {
		body["amount"] = *req.Amount
	}

	var out struct {
		Id            string `json:"id"`
		Amount        int64  `json:"amount"`
		Status        string `json:"status"`
		DeclineCode   string `json:"decline_code"`
		DeclineReason string `json:"decline_reason"`
	}
	status, err := p.post(ctx, "/v1/transactions/"+req.TransactionId+"/refunds", body, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 || out.Status == "declined" {
		return &RefundResult{
			Success:        false,
			FailureCode:    nonEmpty(out.DeclineCode, "refund_failed"),
			FailureMessage: out.DeclineReason,
		}, nil
	}
	return &RefundResult{Success: true, RefundId: out.Id, Amount: out.Amount}, nil
}

func (p *FortisPay) GetPaymentStatus(ctx context.Context, transactionId string) (*StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/transactions/"+transactionId, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.ApiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fortispay status lookup returned %d", resp.StatusCode)
	}

	var txn fortisTransaction
	if err := json.NewDecoder(resp.Body).Decode(&txn); err != nil {
		return nil, err
	}
	st := ProcessStatusProcessing
	switch txn.Status {
	case "approved", "captured", "settled":
		st = ProcessStatusSucceeded
	case "declined", "voided":
		st = ProcessStatusFailed
	case "requires_action":
		st = ProcessStatusRequiresAction
	}
	return &StatusResult{Status: st, Amount: txn.Amount, Metadata: txn.Extra}, nil
}

// fortisWebhookEvent is the notification body FortisPay signs.
type fortisWebhookEvent struct {
	TransactionId string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// VerifyWebhook recomputes HMAC-SHA256 over the ordered field string
// transaction_id|status|amount|currency with the per-company webhook
// secret, base64-encodes it, and compares constant-time. No configured
// secret means verification fails (fail closed).
func (p *FortisPay) VerifyWebhook(payload []byte, signature string) bool {
	if p.cfg.WebhookSecret == "" {
		return false
	}
	var event fortisWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return false
	}

	canonical := event.TransactionId + "|" + event.Status + "|" + strconv.FormatInt(event.Amount, 10) + "|" + event.Currency
	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	mac.Write([]byte(canonical))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *FortisPay) post(ctx context.Context, path string, body any, dest any) (int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.ApiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// 5xx is a transport-level failure: the caller treats it as retryable.
	if resp.StatusCode >= 500 {
		responseBody, _ := io.ReadAll(resp.Body)
		config.GetLogger().WithFields(logrus.Fields{
			"module":    "fortispay",
			"path":      path,
			"status":    resp.StatusCode,
			"companyId": p.cfg.CompanyId,
		}).Error("fortispay server error: " + string(responseBody))
		return resp.StatusCode, fmt.Errorf("fortispay returned status %d", resp.StatusCode)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && err != io.EOF {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
