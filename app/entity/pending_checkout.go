package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PendingCheckoutStatusPending int32 = 1
	PendingCheckoutStatusClaimed int32 = 2
	PendingCheckoutStatusPaid    int32 = 3
)

// PendingCheckout stages a payment-first checkout payload until the provider
// confirms payment. Legal transitions: pending->claimed, claimed->paid.
type PendingCheckout struct {
	ID uint64

	Reference string
	Provider  string

	Amount            decimal.Decimal
	Currency          string
	PaymentPercentage int32

	CheckoutPayload json.RawMessage

	Status    int32
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
