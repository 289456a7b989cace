package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var ErrCheckoutNotFound = errors.New("pending checkout not found")

type PendingCheckoutRepository struct {
	db DBTX
}

func NewPendingCheckoutRepository(db DBTX) *PendingCheckoutRepository {
	return &PendingCheckoutRepository{db: db}
}

// Upsert creates or refreshes a pending-status record. A row that has
// already been claimed or paid is left untouched: re-initiating a reference
// must not reset a checkout that is mid-reconciliation.
func (r *PendingCheckoutRepository) Upsert(ctx context.Context, item *entity.PendingCheckout) error {
	query := `
		INSERT INTO pending_checkouts (
			reference, provider, amount, currency, payment_percentage,
			checkout_payload, status, expires_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			provider = IF(status = ?, VALUES(provider), provider),
			amount = IF(status = ?, VALUES(amount), amount),
			currency = IF(status = ?, VALUES(currency), currency),
			payment_percentage = IF(status = ?, VALUES(payment_percentage), payment_percentage),
			checkout_payload = IF(status = ?, VALUES(checkout_payload), checkout_payload),
			expires_at = IF(status = ?, VALUES(expires_at), expires_at),
			updated_at = IF(status = ?, VALUES(updated_at), updated_at)
	`

	pending := entity.PendingCheckoutStatusPending
	_, err := r.db.ExecContext(ctx, query,
		item.Reference,
		item.Provider,
		decimalValue(item.Amount),
		item.Currency,
		item.PaymentPercentage,
		string(item.CheckoutPayload),
		entity.PendingCheckoutStatusPending,
		item.ExpiresAt,
		item.CreatedAt,
		item.UpdatedAt,
		pending, pending, pending, pending, pending, pending, pending,
	)
	return err
}

// Claim is the concurrency guard: a single conditional update that moves
// exactly one caller from pending to claimed. It deliberately does not
// filter on expires_at; a late-arriving confirmation for collected money
// must still win the claim.
func (r *PendingCheckoutRepository) Claim(ctx context.Context, reference string) (bool, error) {
	query := `
		UPDATE pending_checkouts
		SET status = ?, updated_at = ?
		WHERE reference = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.PendingCheckoutStatusClaimed,
		time.Now().UTC(),
		reference,
		entity.PendingCheckoutStatusPending,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PendingCheckoutRepository) MarkAsPaid(ctx context.Context, reference string) error {
	query := `
		UPDATE pending_checkouts
		SET status = ?, updated_at = ?
		WHERE reference = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.PendingCheckoutStatusPaid,
		time.Now().UTC(),
		reference,
		entity.PendingCheckoutStatusClaimed,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCheckoutNotFound
	}
	return nil
}

func (r *PendingCheckoutRepository) FindByReference(ctx context.Context, reference string) (*entity.PendingCheckout, error) {
	query := `
		SELECT id, reference, provider, amount, currency, payment_percentage,
			checkout_payload, status, expires_at, created_at, updated_at
		FROM pending_checkouts
		WHERE reference = ?
		LIMIT 1
	`

	item := &entity.PendingCheckout{}
	var amountRaw string
	var payloadRaw string

	err := r.db.QueryRowContext(ctx, query, reference).Scan(
		&item.ID,
		&item.Reference,
		&item.Provider,
		&amountRaw,
		&item.Currency,
		&item.PaymentPercentage,
		&payloadRaw,
		&item.Status,
		&item.ExpiresAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	amount, err := parseDecimalColumn(amountRaw)
	if err != nil {
		return nil, err
	}
	item.Amount = amount
	item.CheckoutPayload = []byte(payloadRaw)

	return item, nil
}

// DeleteExpiredPending purges never-paid pending rows past the cutoff.
// Claimed and paid rows are kept for audit.
func (r *PendingCheckoutRepository) DeleteExpiredPending(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	query := `
		DELETE FROM pending_checkouts
		WHERE status = ? AND expires_at <= ?
		LIMIT ?
	`

	result, err := r.db.ExecContext(ctx, query, entity.PendingCheckoutStatusPending, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
