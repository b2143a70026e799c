// Package workflow contains the server-side processing pipelines: offline
// payment ingestion, refunds, and webhook/polling reconciliation.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/payments"
	"github.com/byronwade/Thorbis-sub040/utils"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var validate = validator.New()

var tracer = otel.Tracer("thorbis-field-payments")

// channelForMethod derives the processor channel from the collection
// method. Data-driven on purpose: adding a check-processing backend is a
// row here, not a new branch in the pipeline.
var channelForMethod = map[models.PaymentMethod]payments.Channel{
	models.PaymentMethodCard:      payments.ChannelOnline,
	models.PaymentMethodAch:       payments.ChannelAch,
	models.PaymentMethodFinancing: payments.ChannelOnline,
}

// OfflinePaymentSubmission is the wire payload a field device replays once
// it is back online. ClientId is the idempotency key, unique per company.
type OfflinePaymentSubmission struct {
	ClientId      string               `json:"client_id" validate:"required,max=64"`
	CompanyId     string               `json:"company_id" validate:"required,max=64"`
	CustomerId    *int                 `json:"customer_id"`
	InvoiceId     *int                 `json:"invoice_id"`
	JobId         *int                 `json:"job_id"`
	Amount        int64                `json:"amount" validate:"required,gt=0"`
	Currency      string               `json:"currency" validate:"required,len=3"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required"`
	PaymentData   json.RawMessage      `json:"payment_data"`
	CollectedAt   time.Time            `json:"collected_at"`
	CollectedBy   *int                 `json:"collected_by"`
	DeviceId      *string              `json:"device_id"`
	Notes         *string              `json:"notes"`
	Metadata      map[string]string    `json:"metadata"`
}

// SubmissionResult is what the ingestion endpoint returns. A dedup hit on a
// prior success sets Duplicate and echoes the original ids.
type SubmissionResult struct {
	Duplicate      bool   `json:"duplicate"`
	SyncStatus     string `json:"sync_status"`
	PaymentId      int    `json:"payment_id,omitempty"`
	TransactionId  string `json:"transaction_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// ProcessOfflinePayment runs the per-submission state machine:
// validate -> deduplicate -> branch cash/processor -> execute -> persist.
//
// Error contract (per the client retry protocol):
//   - validation/authorization problems return a terminal error
//   - transport problems toward the processor return a retryable error
//     (utils.IsRetryable) after the queue record is marked with lastError
//   - processor declines are NOT errors; they come back in the result
func ProcessOfflinePayment(ctx context.Context, sub *OfflinePaymentSubmission) (*SubmissionResult, error) {
	logger := config.GetLogger()

	if err := validate.Struct(sub); err != nil {
		return nil, err
	}
	if !sub.PaymentMethod.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", sub.PaymentMethod)
	}

	session, err := models.GetCurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	member, err := models.HasActiveMembership(ctx, session.UserId, sub.CompanyId)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, utils.ErrorUnauthorized
	}

	rec, claimed, err := models.ClaimSubmission(ctx, sub.CompanyId, sub.ClientId, sub.PaymentMethod, sub.Amount, sub.Currency)
	if err != nil {
		if errors.Is(err, models.ErrSubmissionInProgress) {
			return nil, utils.Retryable(err)
		}
		return nil, err
	}
	if !claimed {
		// Exactly-once short circuit: the charge already happened.
		result := &SubmissionResult{
			Duplicate:  true,
			SyncStatus: rec.SyncStatus,
		}
		if rec.PaymentId != nil {
			result.PaymentId = *rec.PaymentId
		}
		if rec.ProcessorTransactionId != nil {
			result.TransactionId = *rec.ProcessorTransactionId
		}
		return result, nil
	}

	if sub.PaymentMethod.RecordedOnly() {
		return recordDirectPayment(ctx, sub, session.UserId)
	}
	return processRoutedPayment(ctx, logger, sub, session.UserId)
}

// recordDirectPayment handles cash and check: recorded, never "processed".
func recordDirectPayment(ctx context.Context, sub *OfflinePaymentSubmission, userId int) (*SubmissionResult, error) {
	paymentId, err := createPaymentFromSubmission(ctx, sub, models.PaymentStatusCompleted, nil, nil, userId)
	if err != nil {
		return nil, markClaimFailedAfterError(ctx, sub, "payment_record_failed", err)
	}
	if err := models.MarkSubmissionSucceeded(ctx, sub.CompanyId, sub.ClientId, nil, nil, paymentId); err != nil {
		return nil, utils.Retryable(err)
	}

	models.LogAction(ctx, "offline_payment.recorded", "payment", fmt.Sprint(paymentId), nil, sub, "offline sync")
	return &SubmissionResult{
		SyncStatus: models.QueueSyncStatusSucceeded,
		PaymentId:  paymentId,
	}, nil
}

// processRoutedPayment selects a backend for the submission's channel and
// executes the charge with a bounded timeout.
func processRoutedPayment(ctx context.Context, logger *logrus.Logger, sub *OfflinePaymentSubmission, userId int) (*SubmissionResult, error) {
	channel, ok := channelForMethod[sub.PaymentMethod]
	if !ok {
		err := fmt.Errorf("no channel mapping for payment method %q", sub.PaymentMethod)
		return nil, markClaimFailedAfterError(ctx, sub, "unroutable_method", err)
	}

	processor, err := payments.Select(ctx, sub.CompanyId, sub.Amount, channel)
	if err != nil {
		if errors.Is(err, utils.ErrorNoProcessor) {
			if markErr := models.MarkSubmissionFailed(ctx, sub.CompanyId, sub.ClientId, "no_processor_configured", err.Error()); markErr != nil {
				return nil, utils.Retryable(markErr)
			}
			return &SubmissionResult{
				SyncStatus:     models.QueueSyncStatusFailed,
				FailureCode:    "no_processor_configured",
				FailureMessage: err.Error(),
			}, nil
		}
		return nil, utils.Retryable(err)
	}

	result, err := executeCharge(ctx, processor, &payments.ProcessRequest{
		CompanyId:      sub.CompanyId,
		IdempotencyKey: sub.ClientId,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Channel:        channel,
		PaymentData:    sub.PaymentData,
		Metadata:       sub.Metadata,
	})
	if err != nil {
		// Transport failure or panic: the backend may or may not have
		// charged, and no transaction id was captured for webhook or
		// polling lookup. Leave the record FAILED with the error; the
		// client's retry replays through the claim, and the idempotency
		// key forwarded to the backend keeps the charge single.
		logger.WithFields(logrus.Fields{
			"module":     "offlinePaymentWorkflow",
			"company_id": sub.CompanyId,
			"client_id":  sub.ClientId,
			"processor":  processor.Type(),
		}).Error("processor call failed: " + err.Error())
		return nil, markClaimFailedAfterError(ctx, sub, "processor_unreachable", err)
	}

	if !result.Success || result.TransactionId == "" {
		code := result.FailureCode
		if code == "" {
			code = "payment_failed"
		}
		if markErr := models.MarkSubmissionFailed(ctx, sub.CompanyId, sub.ClientId, code, result.FailureMessage); markErr != nil {
			return nil, utils.Retryable(markErr)
		}
		models.LogAction(ctx, "offline_payment.declined", "offline_payment_queue", sub.ClientId, nil, result, "processor decline")
		return &SubmissionResult{
			SyncStatus:     models.QueueSyncStatusFailed,
			FailureCode:    code,
			FailureMessage: result.FailureMessage,
		}, nil
	}

	paymentStatus := models.PaymentStatusPending
	if result.Status == payments.ProcessStatusSucceeded {
		paymentStatus = models.PaymentStatusCompleted
	}
	processorType := processor.Type()
	paymentId, err := createPaymentFromSubmission(ctx, sub, paymentStatus, &processorType, &result.ProcessorTransactionId, userId)
	if err != nil {
		return nil, markClaimFailedAfterError(ctx, sub, "payment_record_failed", err)
	}
	if err := models.MarkSubmissionSucceeded(ctx, sub.CompanyId, sub.ClientId, &processorType, &result.ProcessorTransactionId, paymentId); err != nil {
		return nil, utils.Retryable(err)
	}

	models.LogAction(ctx, "offline_payment.captured", "payment", fmt.Sprint(paymentId), nil, result, "offline sync")
	return &SubmissionResult{
		SyncStatus:    models.QueueSyncStatusSucceeded,
		PaymentId:     paymentId,
		TransactionId: result.ProcessorTransactionId,
		ClientSecret:  result.ClientSecret,
	}, nil
}

// executeCharge bounds the processor call and converts panics into errors
// so a misbehaving adapter cannot take the request down with an ambiguous
// queue state.
func executeCharge(ctx context.Context, processor payments.Processor, req *payments.ProcessRequest) (result *payments.ProcessResult, err error) {
	timeout := time.Duration(config.IntFromEnv("PROCESSOR_TIMEOUT_SECONDS", 15)) * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, span := tracer.Start(callCtx, "payments.ProcessPayment")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return processor.ProcessPayment(callCtx, req)
}

// markClaimFailedAfterError records lastError on the claim and returns a
// retryable error. The record must never be left without an error trail.
func markClaimFailedAfterError(ctx context.Context, sub *OfflinePaymentSubmission, code string, cause error) error {
	if markErr := models.MarkSubmissionFailed(ctx, sub.CompanyId, sub.ClientId, code, cause.Error()); markErr != nil {
		config.LogError(config.GetLogger(), "offlinePaymentWorkflow.go", "markClaimFailedAfterError", code, sub.ClientId, markErr)
	}
	return utils.Retryable(cause)
}

func createPaymentFromSubmission(ctx context.Context, sub *OfflinePaymentSubmission, status models.PaymentStatus, processorType, processorTransactionId *string, userId int) (int, error) {
	collectedAt := sub.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}
	collectedBy := sub.CollectedBy
	if collectedBy == nil {
		collectedBy = &userId
	}
	var metadata []byte
	if len(sub.Metadata) > 0 {
		metadata, _ = json.Marshal(sub.Metadata)
	}
	return models.CreatePayment(ctx, &models.NewPayment{
		CompanyId:              sub.CompanyId,
		CustomerId:             sub.CustomerId,
		InvoiceId:              sub.InvoiceId,
		JobId:                  sub.JobId,
		Amount:                 sub.Amount,
		Currency:               sub.Currency,
		Method:                 sub.PaymentMethod,
		Status:                 status,
		ProcessorType:          processorType,
		ProcessorTransactionId: processorTransactionId,
		CollectedAt:            collectedAt,
		CollectedBy:            collectedBy,
		DeviceId:               sub.DeviceId,
		Notes:                  sub.Notes,
		Metadata:               metadata,
	})
}
