package models

import (
	"context"
	"errors"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
)

var ErrRefundExceedsBalance = errors.New("refund amount exceeds remaining balance")

type Refund struct {
	ID                int        `gorm:"primary_key" json:"id"`
	CompanyId         string     `gorm:"size:64;not null;index" json:"company_id"`
	PaymentId         int        `gorm:"not null;index" json:"payment_id"`
	Amount            int64      `gorm:"not null" json:"amount"`
	Currency          string     `gorm:"size:3;not null" json:"currency"`
	ProcessorRefundId *string    `gorm:"size:255" json:"processor_refund_id"`
	Reason            *string    `gorm:"type:text" json:"reason"`
	IssuedBy          *int       `json:"issued_by"`
	IssuedAt          time.Time  `gorm:"not null" json:"issued_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRefund struct {
	CompanyId         string
	PaymentId         int
	Amount            int64
	Currency          string
	ProcessorRefundId *string
	Reason            *string
	IssuedBy          *int
}

func CreateRefund(ctx context.Context, input *NewRefund) (int, error) {
	db := config.GetDB()
	refund := Refund{
		CompanyId:         input.CompanyId,
		PaymentId:         input.PaymentId,
		Amount:            input.Amount,
		Currency:          input.Currency,
		ProcessorRefundId: input.ProcessorRefundId,
		Reason:            input.Reason,
		IssuedBy:          input.IssuedBy,
		IssuedAt:          time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&refund).Error; err != nil {
		return 0, err
	}
	return refund.ID, nil
}
