package models

// PaymentMethod is how the technician collected the money in the field.
type PaymentMethod string

const (
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodAch       PaymentMethod = "ach"
	PaymentMethodCheck     PaymentMethod = "check"
	PaymentMethodCash      PaymentMethod = "cash"
	PaymentMethodFinancing PaymentMethod = "financing"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodAch, PaymentMethodCheck, PaymentMethodCash, PaymentMethodFinancing:
		return true
	}
	return false
}

// RecordedOnly reports whether the method is recorded without a processor
// call (cash, and check while no check-processing backend exists).
func (m PaymentMethod) RecordedOnly() bool {
	return m == PaymentMethodCash || m == PaymentMethodCheck
}

// PaymentStatus is the lifecycle state of a payment row.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Sync statuses for OfflinePaymentQueueRecord.SyncStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	QueueSyncStatusPending   = "PENDING"
	QueueSyncStatusSucceeded = "SUCCEEDED"
	QueueSyncStatusFailed    = "FAILED"
)

type UserRole string

const (
	UserRoleAdmin      UserRole = "A"
	UserRoleOwner      UserRole = "O"
	UserRoleTechnician UserRole = "T"
)
