package models

import (
	"context"
	"errors"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrSubmissionInProgress means another caller holds the PENDING claim for
// the same (company_id, client_id). The client should retry shortly; the
// winner's result will be read on the next attempt.
var ErrSubmissionInProgress = errors.New("offline payment submission in progress")

// claimStaleAfter is how long a PENDING claim may sit before a retry is
// allowed to take it over (crashed worker, lost response).
const claimStaleAfter = 2 * time.Minute

// OfflinePaymentQueueRecord is the server-side dedup row for one offline
// payment submission. Unique constraint: (company_id, client_id).
type OfflinePaymentQueueRecord struct {
	ID                     int           `gorm:"primary_key" json:"id"`
	CompanyId              string        `gorm:"size:64;not null;index:uniq_offline_payment,unique" json:"company_id"`
	ClientId               string        `gorm:"size:64;not null;index:uniq_offline_payment,unique" json:"client_id"`
	SyncStatus             string        `gorm:"size:20;not null;index" json:"sync_status"`
	PaymentMethod          PaymentMethod `gorm:"size:20;not null" json:"payment_method"`
	Amount                 int64         `gorm:"not null" json:"amount"`
	Currency               string        `gorm:"size:3;not null" json:"currency"`
	ProcessorType          *string       `gorm:"size:40" json:"processor_type"`
	ProcessorTransactionId *string       `gorm:"size:255" json:"processor_transaction_id"`
	PaymentId              *int          `gorm:"index" json:"payment_id"`
	LastError              *string       `gorm:"type:text" json:"last_error"`
	LastErrorCode          *string       `gorm:"size:64" json:"last_error_code"`
	ProcessedAt            *time.Time    `json:"processed_at"`
	CreatedAt              time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// ClaimSubmission is the conflict-safe "insert PENDING if absent, else
// return existing" operation that serializes concurrent resubmissions of
// the same (companyId, clientId).
//
// Returns (record, claimed):
//   - claimed=true: the caller owns the claim and must proceed to charge,
//     then MarkSubmissionSucceeded/Failed.
//   - claimed=false: a prior attempt already SUCCEEDED; record holds its
//     result and no charge may be made.
//
// A fresh PENDING claim held by someone else yields ErrSubmissionInProgress.
// A stale PENDING or a FAILED record is re-claimed atomically (the
// conditional update admits exactly one of several concurrent callers).
func ClaimSubmission(ctx context.Context, companyId, clientId string, method PaymentMethod, amount int64, currency string) (*OfflinePaymentQueueRecord, bool, error) {
	db := config.GetDB()

	rec := OfflinePaymentQueueRecord{
		CompanyId:     companyId,
		ClientId:      clientId,
		SyncStatus:    QueueSyncStatusPending,
		PaymentMethod: method,
		Amount:        amount,
		Currency:      currency,
	}
	err := db.WithContext(ctx).Create(&rec).Error
	if err == nil {
		return &rec, true, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, false, err
	}

	var existing OfflinePaymentQueueRecord
	if err := db.WithContext(ctx).
		Where("company_id = ? AND client_id = ?", companyId, clientId).
		First(&existing).Error; err != nil {
		return nil, false, err
	}

	switch existing.SyncStatus {
	case QueueSyncStatusSucceeded:
		return &existing, false, nil
	case QueueSyncStatusPending:
		if time.Since(existing.UpdatedAt) < claimStaleAfter {
			return &existing, false, ErrSubmissionInProgress
		}
		return reclaim(ctx, db, &existing)
	default: // FAILED: re-attempt toward eventual success
		return reclaim(ctx, db, &existing)
	}
}

// reclaim flips a FAILED or stale PENDING row back to PENDING. The status
// guard in the WHERE clause makes sure only one concurrent caller wins.
func reclaim(ctx context.Context, db *gorm.DB, existing *OfflinePaymentQueueRecord) (*OfflinePaymentQueueRecord, bool, error) {
	res := db.WithContext(ctx).Model(&OfflinePaymentQueueRecord{}).
		Where("id = ? AND sync_status = ? AND updated_at = ?", existing.ID, existing.SyncStatus, existing.UpdatedAt).
		Updates(map[string]interface{}{
			"sync_status":     QueueSyncStatusPending,
			"last_error":      nil,
			"last_error_code": nil,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return existing, false, ErrSubmissionInProgress
	}
	existing.SyncStatus = QueueSyncStatusPending
	existing.LastError = nil
	existing.LastErrorCode = nil
	return existing, true, nil
}

func MarkSubmissionSucceeded(ctx context.Context, companyId, clientId string, processorType, processorTransactionId *string, paymentId int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&OfflinePaymentQueueRecord{}).
		Where("company_id = ? AND client_id = ?", companyId, clientId).
		Updates(map[string]interface{}{
			"sync_status":              QueueSyncStatusSucceeded,
			"processor_type":           processorType,
			"processor_transaction_id": processorTransactionId,
			"payment_id":               paymentId,
			"last_error":               nil,
			"last_error_code":          nil,
			"processed_at":             &now,
		}).Error
}

func MarkSubmissionFailed(ctx context.Context, companyId, clientId string, errorCode, errorMessage string) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&OfflinePaymentQueueRecord{}).
		Where("company_id = ? AND client_id = ? AND sync_status <> ?", companyId, clientId, QueueSyncStatusSucceeded).
		Updates(map[string]interface{}{
			"sync_status":     QueueSyncStatusFailed,
			"last_error":      &errorMessage,
			"last_error_code": &errorCode,
			"processed_at":    &now,
		}).Error
}

// RecordSubmissionReversal annotates a SUCCEEDED record with a
// post-settlement reversal reported by the processor. The sync status stays
// SUCCEEDED so the claim stays burned and a client resubmission cannot
// re-charge a reversed payment; the payment row carries the FAILED state.
func RecordSubmissionReversal(ctx context.Context, companyId, clientId, errorCode, errorMessage string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OfflinePaymentQueueRecord{}).
		Where("company_id = ? AND client_id = ? AND sync_status = ?", companyId, clientId, QueueSyncStatusSucceeded).
		Updates(map[string]interface{}{
			"last_error":      &errorMessage,
			"last_error_code": &errorCode,
		}).Error
}

func GetQueueRecord(ctx context.Context, companyId, clientId string) (*OfflinePaymentQueueRecord, error) {
	db := config.GetDB()
	var rec OfflinePaymentQueueRecord
	if err := db.WithContext(ctx).
		Where("company_id = ? AND client_id = ?", companyId, clientId).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetQueueRecordByProcessorTransaction looks a record up by the processor's
// transaction id. Used by webhook reconciliation.
func GetQueueRecordByProcessorTransaction(ctx context.Context, companyId, processorTransactionId string) (*OfflinePaymentQueueRecord, error) {
	db := config.GetDB()
	var rec OfflinePaymentQueueRecord
	if err := db.WithContext(ctx).
		Where("company_id = ? AND processor_transaction_id = ?", companyId, processorTransactionId).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListQueueRecords is the UI-facing status surface for a company's offline
// submissions, newest first.
func ListQueueRecords(ctx context.Context, companyId string, limit int) ([]OfflinePaymentQueueRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	db := config.GetDB()
	var recs []OfflinePaymentQueueRecord
	if err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
