package entity

import "time"

// ProviderTransaction keeps per-provider raw state (poll URL, hash, provider
// status string) for audit and reconciliation. It is never consulted for
// idempotency decisions.
type ProviderTransaction struct {
	ID uint64

	Reference string
	Provider  string

	ProviderReference *string
	PollURL           *string
	VerifyHash        *string

	ProviderStatus string
	PollAttempts   int32

	CreatedAt time.Time
	UpdatedAt time.Time
}
