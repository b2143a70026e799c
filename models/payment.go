package models

import (
	"context"
	"fmt"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"gorm.io/gorm"
)

// Payment is the durable payment record. Creation is append-only; later
// mutations touch status/refund fields only.
type Payment struct {
	ID                     int           `gorm:"primary_key" json:"id"`
	CompanyId              string        `gorm:"size:64;not null;index" json:"company_id"`
	CustomerId             *int          `gorm:"index" json:"customer_id"`
	InvoiceId              *int          `gorm:"index" json:"invoice_id"`
	JobId                  *int          `gorm:"index" json:"job_id"`
	Amount                 int64         `gorm:"not null" json:"amount"`
	AmountRefunded         int64         `gorm:"not null;default:0" json:"amount_refunded"`
	Currency               string        `gorm:"size:3;not null" json:"currency"`
	Method                 PaymentMethod `gorm:"size:20;not null" json:"method"`
	Status                 PaymentStatus `gorm:"size:30;not null;index" json:"status"`
	ProcessorType          *string       `gorm:"size:40" json:"processor_type"`
	ProcessorTransactionId *string       `gorm:"size:255;index" json:"processor_transaction_id"`
	CollectedAt            time.Time     `gorm:"not null" json:"collected_at"`
	CollectedBy            *int          `json:"collected_by"`
	DeviceId               *string       `gorm:"size:64" json:"device_id"`
	Notes                  *string       `gorm:"type:text" json:"notes"`
	Metadata               []byte        `gorm:"type:json" json:"metadata"`
	CreatedAt              time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPayment struct {
	CompanyId              string
	CustomerId             *int
	InvoiceId              *int
	JobId                  *int
	Amount                 int64
	Currency               string
	Method                 PaymentMethod
	Status                 PaymentStatus
	ProcessorType          *string
	ProcessorTransactionId *string
	CollectedAt            time.Time
	CollectedBy            *int
	DeviceId               *string
	Notes                  *string
	Metadata               []byte
}

func CreatePayment(ctx context.Context, input *NewPayment) (int, error) {
	db := config.GetDB()
	payment := Payment{
		CompanyId:              input.CompanyId,
		CustomerId:             input.CustomerId,
		InvoiceId:              input.InvoiceId,
		JobId:                  input.JobId,
		Amount:                 input.Amount,
		Currency:               input.Currency,
		Method:                 input.Method,
		Status:                 input.Status,
		ProcessorType:          input.ProcessorType,
		ProcessorTransactionId: input.ProcessorTransactionId,
		CollectedAt:            input.CollectedAt,
		CollectedBy:            input.CollectedBy,
		DeviceId:               input.DeviceId,
		Notes:                  input.Notes,
		Metadata:               input.Metadata,
	}
	if err := db.WithContext(ctx).Create(&payment).Error; err != nil {
		return 0, err
	}
	return payment.ID, nil
}

func GetPayment(ctx context.Context, companyId string, paymentId int) (*Payment, error) {
	db := config.GetDB()
	var payment Payment
	if err := db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, paymentId).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func UpdatePaymentStatus(ctx context.Context, companyId string, paymentId int, status PaymentStatus) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Payment{}).
		Where("company_id = ? AND id = ?", companyId, paymentId).
		Update("status", status).Error
}

// ApplyRefund atomically adds amount to amount_refunded, guarded so the
// total can never exceed the charged amount even under concurrent refunds.
// Returns the payment's post-refund state.
func ApplyRefund(ctx context.Context, companyId string, paymentId int, amount int64) (*Payment, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Payment{}).
		Where("company_id = ? AND id = ? AND amount_refunded + ? <= amount", companyId, paymentId, amount).
		Update("amount_refunded", gorm.Expr("amount_refunded + ?", amount))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrRefundExceedsBalance
	}

	payment, err := GetPayment(ctx, companyId, paymentId)
	if err != nil {
		return nil, err
	}

	status := PaymentStatusPartiallyRefunded
	if payment.AmountRefunded >= payment.Amount {
		status = PaymentStatusRefunded
	}
	if err := UpdatePaymentStatus(ctx, companyId, paymentId, status); err != nil {
		return nil, err
	}
	payment.Status = status
	return payment, nil
}

// ReleaseRefund backs out a reservation made by ApplyRefund whose processor
// call never completed, subtracting amount from amount_refunded and
// restoring the status to match the new balance.
func ReleaseRefund(ctx context.Context, companyId string, paymentId int, amount int64) error {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Payment{}).
		Where("company_id = ? AND id = ? AND amount_refunded >= ?", companyId, paymentId, amount).
		Update("amount_refunded", gorm.Expr("amount_refunded - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("refund reservation of %d on payment %d not found", amount, paymentId)
	}

	payment, err := GetPayment(ctx, companyId, paymentId)
	if err != nil {
		return err
	}
	status := PaymentStatusCompleted
	if payment.AmountRefunded > 0 {
		status = PaymentStatusPartiallyRefunded
	}
	return UpdatePaymentStatus(ctx, companyId, paymentId, status)
}
