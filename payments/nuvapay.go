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
)

// TypeNuvaPay is the alternate online card backend, used by companies whose
// primary terminal processor does not cover online checkout.
const TypeNuvaPay = "nuvapay"

func init() {
	Register(TypeNuvaPay, func(cfg Config) Processor {
		return &NuvaPay{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	})
}

type NuvaPay struct {
	cfg  Config
	http *http.Client
}

func (p *NuvaPay) Type() string { return TypeNuvaPay }

func (p *NuvaPay) SupportedChannels() []Channel {
	return []Channel{ChannelOnline}
}

type nuvaCharge struct {
	ChargeId     string         `json:"charge_id"`
	Outcome      string         `json:"outcome"`
	AmountMinor  int64          `json:"amount_minor"`
	RedirectCode string         `json:"redirect_code"`
	Reason       string         `json:"reason"`
	ReasonCode   string         `json:"reason_code"`
	Meta         map[string]any `json:"meta"`
}

func (p *NuvaPay) ProcessPayment(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	body := map[string]any{
		"merchant":    p.cfg.MerchantId,
		"amount":      req.Amount,
		"currency":    req.Currency,
		"reference":   req.IdempotencyKey,
		"card_source": req.PaymentData,
	}

	var charge nuvaCharge
	status, err := p.post(ctx, "/charges", body, &charge)
	if err != nil {
		return nil, err
	}
	if status >= 400 || charge.Outcome == "declined" {
		return &ProcessResult{
			Success:        false,
			Status:         ProcessStatusFailed,
			FailureCode:    nonEmpty(charge.ReasonCode, "card_declined"),
			FailureMessage: charge.Reason,
		}, nil
	}

	result := &ProcessResult{
		Success:                true,
		TransactionId:          charge.ChargeId,
		ProcessorTransactionId: charge.ChargeId,
		ClientSecret:           charge.RedirectCode,
		ProcessorMetadata:      charge.Meta,
	}
	switch charge.Outcome {
	case "paid":
		result.Status = ProcessStatusSucceeded
	case "redirect":
		result.Status = ProcessStatusRequiresAction
	default:
		result.Status = ProcessStatusProcessing
	}
	return result, nil
}

func (p *NuvaPay) RefundPayment(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"merchant": p.cfg.MerchantId,
		"reason":   req.Reason,
	}
	if req.Amount != nil {
		body["amount"] = *req.Amount
	}

	var out nuvaCharge
	status, err := p.post(ctx, "/charges/"+req.TransactionId+"/refund", body, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 || out.Outcome == "declined" {
		return &RefundResult{
			Success:        false,
			FailureCode:    nonEmpty(out.ReasonCode, "refund_failed"),
			FailureMessage: out.Reason,
		}, nil
	}
	return &RefundResult{Success: true, RefundId: out.ChargeId, Amount: out.AmountMinor}, nil
}

func (p *NuvaPay) GetPaymentStatus(ctx context.Context, transactionId string) (*StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/charges/"+transactionId, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+p.cfg.ApiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nuvapay status lookup returned %d", resp.StatusCode)
	}

	var charge nuvaCharge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, err
	}
	st := ProcessStatusProcessing
	switch charge.Outcome {
	case "paid":
		st = ProcessStatusSucceeded
	case "declined", "reversed":
		st = ProcessStatusFailed
	case "redirect":
		st = ProcessStatusRequiresAction
	}
	return &StatusResult{Status: st, Amount: charge.AmountMinor, Metadata: charge.Meta}, nil
}

// VerifyWebhook checks NuvaPay's keyed digest: hex SHA-256 of secret,
// a dot, and the raw payload. Fails closed when no secret is configured.
func (p *NuvaPay) VerifyWebhook(payload []byte, signature string) bool {
	if p.cfg.WebhookSecret == "" {
		return false
	}
	h := sha256.New()
	h.Write([]byte(p.cfg.WebhookSecret))
	h.Write([]byte("."))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *NuvaPay) post(ctx context.Context, path string, body any, dest any) (int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+p.cfg.ApiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("nuvapay returned status %d", resp.StatusCode)
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && err != io.EOF {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
