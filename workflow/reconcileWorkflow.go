package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/payments"
	"github.com/sirupsen/logrus"
)

// ErrWebhookRejected means the notification signature did not verify.
// The receiver must not trust anything in the payload.
var ErrWebhookRejected = errors.New("webhook signature rejected")

// webhookNotification is the union of the fields the three backends put in
// their status notifications. Each backend uses its own key names.
type webhookNotification struct {
	TransactionId string `json:"transaction_id"`
	TransferId    string `json:"transfer_id"`
	ChargeId      string `json:"charge_id"`

	Status  string `json:"status"`
	State   string `json:"state"`
	Outcome string `json:"outcome"`

	DeclineCode   string `json:"decline_code"`
	ErrorCode     string `json:"error_code"`
	ReasonCode    string `json:"reason_code"`
	DeclineReason string `json:"decline_reason"`
	ErrorText     string `json:"error_text"`
	Reason        string `json:"reason"`
}

func (n *webhookNotification) transactionId() string {
	switch {
	case n.TransactionId != "":
		return n.TransactionId
	case n.TransferId != "":
		return n.TransferId
	default:
		return n.ChargeId
	}
}

func (n *webhookNotification) rawStatus() string {
	switch {
	case n.Status != "":
		return n.Status
	case n.State != "":
		return n.State
	default:
		return n.Outcome
	}
}

func (n *webhookNotification) failureCode() string {
	switch {
	case n.DeclineCode != "":
		return n.DeclineCode
	case n.ErrorCode != "":
		return n.ErrorCode
	default:
		return n.ReasonCode
	}
}

func (n *webhookNotification) failureMessage() string {
	switch {
	case n.DeclineReason != "":
		return n.DeclineReason
	case n.ErrorText != "":
		return n.ErrorText
	default:
		return n.Reason
	}
}

func normalizeProcessorStatus(raw string) payments.ProcessStatus {
	switch raw {
	case "approved", "captured", "settled", "paid", "succeeded":
		return payments.ProcessStatusSucceeded
	case "declined", "rejected", "returned", "voided", "reversed", "failed":
		return payments.ProcessStatusFailed
	case "requires_action", "redirect":
		return payments.ProcessStatusRequiresAction
	default:
		return payments.ProcessStatusProcessing
	}
}

// ReconcileWebhook handles one asynchronous status notification from a
// payment backend. The signature is verified before any payload field is
// trusted; an unverifiable notification is dropped with ErrWebhookRejected.
func ReconcileWebhook(ctx context.Context, companyId, processorType string, payload []byte, signature string) error {
	logger := config.GetLogger()

	processor, err := payments.ForType(ctx, companyId, processorType)
	if err != nil {
		return err
	}
	if !processor.VerifyWebhook(payload, signature) {
		logger.WithFields(logrus.Fields{
			"module":     "reconcileWorkflow",
			"company_id": companyId,
			"processor":  processorType,
		}).Warn("webhook signature rejected")
		return ErrWebhookRejected
	}

	var notification webhookNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return err
	}
	transactionId := notification.transactionId()
	if transactionId == "" {
		return errors.New("webhook notification missing transaction id")
	}

	// Best-effort per-company serialization of reconciliation writes.
	// Correctness does not depend on the lock; the conditional updates in
	// models do the real serialization.
	if redisLock := config.GetRedisLock(); redisLock != nil {
		lock, lockErr := redisLock.Obtain(ctx, "lock:webhook:"+companyId, 30*time.Second, nil)
		if lockErr == nil {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					logger.WithFields(logrus.Fields{
						"module":     "reconcileWorkflow",
						"company_id": companyId,
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		} else if lockErr != redislock.ErrNotObtained {
			logger.WithFields(logrus.Fields{
				"module":     "reconcileWorkflow",
				"company_id": companyId,
			}).Warn("error obtaining redis lock; proceeding without it: " + lockErr.Error())
		}
	}

	return applyProcessorStatus(ctx, companyId, transactionId,
		normalizeProcessorStatus(notification.rawStatus()),
		notification.failureCode(), notification.failureMessage())
}

// applyProcessorStatus moves the queue record and payment referenced by a
// processor transaction to the notified status.
func applyProcessorStatus(ctx context.Context, companyId, transactionId string, status payments.ProcessStatus, failureCode, failureMessage string) error {
	rec, err := models.GetQueueRecordByProcessorTransaction(ctx, companyId, transactionId)
	if err != nil {
		return err
	}

	switch status {
	case payments.ProcessStatusSucceeded:
		if rec.PaymentId != nil {
			if err := models.UpdatePaymentStatus(ctx, companyId, *rec.PaymentId, models.PaymentStatusCompleted); err != nil {
				return err
			}
		}
		models.LogAction(ctx, "offline_payment.settled", "offline_payment_queue", rec.ClientId, nil, rec, "processor notification")
	case payments.ProcessStatusFailed:
		if rec.PaymentId != nil {
			if err := models.UpdatePaymentStatus(ctx, companyId, *rec.PaymentId, models.PaymentStatusFailed); err != nil {
				return err
			}
		}
		if failureCode == "" {
			failureCode = "processor_reported_failure"
		}
		// A failure on a record that already settled is a reversal: the
		// claim stays burned (resubmission must not re-charge), only the
		// error trail and the payment row record it.
		if rec.SyncStatus == models.QueueSyncStatusSucceeded {
			if err := models.RecordSubmissionReversal(ctx, companyId, rec.ClientId, failureCode, failureMessage); err != nil {
				return err
			}
		} else if err := models.MarkSubmissionFailed(ctx, companyId, rec.ClientId, failureCode, failureMessage); err != nil {
			return err
		}
		models.LogAction(ctx, "offline_payment.reversed", "offline_payment_queue", rec.ClientId, nil, rec, "processor notification")
	default:
		// processing / requires_action: nothing durable to change yet.
	}
	return nil
}

// PollPaymentStatus is the pull-side reconciliation: for a queue record
// whose payment is still PENDING, ask the backend for the transaction's
// current state and apply it. Used when a processor call timed out or a
// webhook was missed.
func PollPaymentStatus(ctx context.Context, companyId, clientId string) (*models.OfflinePaymentQueueRecord, error) {
	rec, err := models.GetQueueRecord(ctx, companyId, clientId)
	if err != nil {
		return nil, err
	}
	if rec.ProcessorType == nil || rec.ProcessorTransactionId == nil {
		// No transaction id means the charge never got one (timeout before
		// a response, or a recorded-only method). There is nothing to poll;
		// only a client resubmission through the claim can move the record.
		return rec, nil
	}

	processor, err := payments.ForType(ctx, companyId, *rec.ProcessorType)
	if err != nil {
		return nil, err
	}
	status, err := processor.GetPaymentStatus(ctx, *rec.ProcessorTransactionId)
	if err != nil {
		return nil, err
	}

	failureCode := ""
	if v, ok := status.Metadata["failure_code"].(string); ok {
		failureCode = v
	}
	if err := applyProcessorStatus(ctx, companyId, *rec.ProcessorTransactionId, status.Status, failureCode, ""); err != nil {
		return nil, err
	}
	return models.GetQueueRecord(ctx, companyId, clientId)
}
