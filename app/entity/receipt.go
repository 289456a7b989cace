package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReceiptStatusPaid int32 = 10

	SyncDeliveryPending int32 = 1
	SyncDeliverySuccess int32 = 10
	SyncDeliveryFailed  int32 = 20
)

// PaymentReceipt is the append-only record of a confirmed payment. The
// (reference, status) pair is unique at the storage level; paid is the only
// status ever written.
type PaymentReceipt struct {
	ID uint64

	OrderID           uint64
	Provider          string
	Reference         string
	ProviderReference string

	Amount   decimal.Decimal
	Currency string

	Metadata map[string]string

	Status int32
	PaidAt time.Time

	SyncStatus   int32
	SyncAttempts int32
	SyncNextAt   *time.Time
	SyncLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
