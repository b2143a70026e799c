package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
)

// TypeAchBridge is the bank-transfer (ACH) backend. Its API takes dollar
// amounts as decimal strings, so minor units are converted at the edge.
const TypeAchBridge = "achbridge"

func init() {
	Register(TypeAchBridge, func(cfg Config) Processor {
		return &AchBridge{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	})
}

type AchBridge struct {
	cfg  Config
	http *http.Client
}

func (p *AchBridge) Type() string { return TypeAchBridge }

func (p *AchBridge) SupportedChannels() []Channel {
	return []Channel{ChannelAch}
}

// dollarString renders minor units as "12.34" for the AchBridge API.
func dollarString(amount int64) string {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).StringFixed(2)
}

type achTransfer struct {
	TransferId string         `json:"transfer_id"`
	State      string         `json:"state"`
	Amount     string         `json:"amount"`
	ErrorCode  string         `json:"error_code"`
	ErrorText  string         `json:"error_text"`
	Details    map[string]any `json:"details"`
}

func (a *achTransfer) amountMinorUnits() int64 {
	d, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return 0
	}
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

func (p *AchBridge) ProcessPayment(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	body := map[string]any{
		"merchant_id":     p.cfg.MerchantId,
		"amount":          dollarString(req.Amount),
		"currency":        req.Currency,
		"idempotency_key": req.IdempotencyKey,
		"bank_account":    req.PaymentData,
	}

	var transfer achTransfer
	status, err := p.post(ctx, "/api/transfers", body, &transfer)
	if err != nil {
		return nil, err
	}
	if status >= 400 || transfer.State == "rejected" {
		return &ProcessResult{
			Success:        false,
			Status:         ProcessStatusFailed,
			FailureCode:    nonEmpty(transfer.ErrorCode, "transfer_rejected"),
			FailureMessage: transfer.ErrorText,
		}, nil
	}

	result := &ProcessResult{
		Success:                true,
		TransactionId:          transfer.TransferId,
		ProcessorTransactionId: transfer.TransferId,
		ProcessorMetadata:      transfer.Details,
	}
	// ACH settles asynchronously; a fresh transfer is almost always
	// "processing" until the settlement webhook arrives.
	if transfer.State == "settled" {
		result.Status = ProcessStatusSucceeded
	} else {
		result.Status = ProcessStatusProcessing
	}
	return result, nil
}

func (p *AchBridge) RefundPayment(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"merchant_id": p.cfg.MerchantId,
		"reason":      req.Reason,
	}
	if req.Amount != nil {
		body["amount"] = dollarString(*req.Amount)
	}

	var out achTransfer
	status, err := p.post(ctx, "/api/transfers/"+req.TransactionId+"/reversals", body, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 || out.State == "rejected" {
		return &RefundResult{
			Success:        false,
			FailureCode:    nonEmpty(out.ErrorCode, "reversal_rejected"),
			FailureMessage: out.ErrorText,
		}, nil
	}
	return &RefundResult{Success: true, RefundId: out.TransferId, Amount: out.amountMinorUnits()}, nil
}

func (p *AchBridge) GetPaymentStatus(ctx context.Context, transactionId string) (*StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/transfers/"+transactionId, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Api-Key", p.cfg.ApiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("achbridge status lookup returned %d", resp.StatusCode)
	}

	var transfer achTransfer
	if err := json.NewDecoder(resp.Body).Decode(&transfer); err != nil {
		return nil, err
	}
	st := ProcessStatusProcessing
	switch transfer.State {
	case "settled":
		st = ProcessStatusSucceeded
	case "rejected", "returned":
		st = ProcessStatusFailed
	}
	return &StatusResult{Status: st, Amount: transfer.amountMinorUnits(), Metadata: transfer.Details}, nil
}

// VerifyWebhook checks the hex HMAC-SHA256 of the raw payload. Fails
// closed when no secret is configured.
func (p *AchBridge) VerifyWebhook(payload []byte, signature string) bool {
	if p.cfg.WebhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *AchBridge) post(ctx context.Context, path string, body any, dest any) (int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.cfg.ApiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("achbridge returned status %d", resp.StatusCode)
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && err != io.EOF {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
