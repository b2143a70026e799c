package workflow

import (
	"context"
	"fmt"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/payments"
	"github.com/byronwade/Thorbis-sub040/utils"
)

// RefundSubmission asks for a refund against an existing payment. A nil
// Amount refunds the full remaining balance.
type RefundSubmission struct {
	CompanyId string  `json:"company_id" validate:"required,max=64"`
	PaymentId int     `json:"payment_id" validate:"required,gt=0"`
	Amount    *int64  `json:"amount"`
	Reason    *string `json:"reason"`
}

type RefundOutcome struct {
	Success        bool   `json:"success"`
	RefundId       int    `json:"refund_id,omitempty"`
	Amount         int64  `json:"amount"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// resolveRefundAmount applies the refund bound. A nil requested amount
// means the full remaining balance; a non-positive amount or one above the
// remaining balance is rejected.
func resolveRefundAmount(payment *models.Payment, requested *int64) (int64, error) {
	remaining := payment.Amount - payment.AmountRefunded
	amount := remaining
	if requested != nil {
		amount = *requested
	}
	if amount <= 0 || amount > remaining {
		return 0, models.ErrRefundExceedsBalance
	}
	return amount, nil
}

// RefundOfflinePayment reserves the refund amount on the payment row BEFORE
// any processor call, so concurrent refunds of the same payment are
// serialized by the ledger's bound guard and the backend is asked at most
// once per reserved amount. A reservation whose processor call does not go
// through is released.
func RefundOfflinePayment(ctx context.Context, sub *RefundSubmission) (*RefundOutcome, error) {
	if err := validate.Struct(sub); err != nil {
		return nil, err
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

	payment, err := models.GetPayment(ctx, sub.CompanyId, sub.PaymentId)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusCompleted && payment.Status != models.PaymentStatusPartiallyRefunded {
		return nil, fmt.Errorf("payment %d is not refundable in status %s", payment.ID, payment.Status)
	}

	amount, err := resolveRefundAmount(payment, sub.Amount)
	if err != nil {
		return nil, err
	}

	// The conditional update inside ApplyRefund admits at most the remaining
	// balance across concurrent callers; a loser gets ErrRefundExceedsBalance
	// here and never reaches the processor.
	updated, err := models.ApplyRefund(ctx, sub.CompanyId, payment.ID, amount)
	if err != nil {
		return nil, err
	}

	var processorRefundId *string
	if payment.ProcessorType != nil && payment.ProcessorTransactionId != nil {
		processor, err := payments.ForType(ctx, sub.CompanyId, *payment.ProcessorType)
		if err != nil {
			return nil, releaseReservation(ctx, sub.CompanyId, payment.ID, amount, err)
		}
		reason := ""
		if sub.Reason != nil {
			reason = *sub.Reason
		}
		result, err := processor.RefundPayment(ctx, &payments.RefundRequest{
			CompanyId:     sub.CompanyId,
			TransactionId: *payment.ProcessorTransactionId,
			Amount:        &amount,
			Currency:      payment.Currency,
			Reason:        reason,
		})
		if err != nil {
			return nil, releaseReservation(ctx, sub.CompanyId, payment.ID, amount, utils.Retryable(err))
		}
		if !result.Success {
			if relErr := models.ReleaseRefund(ctx, sub.CompanyId, payment.ID, amount); relErr != nil {
				config.LogError(config.GetLogger(), "refundWorkflow.go", "RefundOfflinePayment", "ReleaseRefund", payment.ID, relErr)
			}
			return &RefundOutcome{
				Success:        false,
				Amount:         amount,
				FailureCode:    result.FailureCode,
				FailureMessage: result.FailureMessage,
			}, nil
		}
		processorRefundId = &result.RefundId
	}
	// Cash/check payments have no backend; the refund is recorded only.

	refundId, err := models.CreateRefund(ctx, &models.NewRefund{
		CompanyId:         sub.CompanyId,
		PaymentId:         payment.ID,
		Amount:            amount,
		Currency:          payment.Currency,
		ProcessorRefundId: processorRefundId,
		Reason:            sub.Reason,
		IssuedBy:          &session.UserId,
	})
	if err != nil {
		return nil, err
	}

	models.LogAction(ctx, "payment.refunded", "payment", fmt.Sprint(payment.ID), payment, updated, "refund issued")
	return &RefundOutcome{
		Success:       true,
		RefundId:      refundId,
		Amount:        amount,
		PaymentStatus: string(updated.Status),
	}, nil
}

// releaseReservation backs out a reserved amount whose processor call did
// not complete, then returns the original error. If the release itself
// fails the amount stays reserved, which can under-refund but never
// over-refund.
func releaseReservation(ctx context.Context, companyId string, paymentId int, amount int64, cause error) error {
	if err := models.ReleaseRefund(ctx, companyId, paymentId, amount); err != nil {
		config.LogError(config.GetLogger(), "refundWorkflow.go", "releaseReservation", "ReleaseRefund", paymentId, err)
	}
	return cause
}
