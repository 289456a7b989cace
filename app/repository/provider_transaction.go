package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type ProviderTransactionRepository struct {
	db DBTX
}

func NewProviderTransactionRepository(db DBTX) *ProviderTransactionRepository {
	return &ProviderTransactionRepository{db: db}
}

func (r *ProviderTransactionRepository) Upsert(ctx context.Context, txn *entity.ProviderTransaction) error {
	query := `
		INSERT INTO provider_transactions (
			reference, provider, provider_reference, poll_url, verify_hash,
			provider_status, poll_attempts, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			provider = VALUES(provider),
			provider_reference = COALESCE(VALUES(provider_reference), provider_reference),
			poll_url = COALESCE(VALUES(poll_url), poll_url),
			verify_hash = COALESCE(VALUES(verify_hash), verify_hash),
			provider_status = VALUES(provider_status),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.Reference,
		txn.Provider,
		nullableStringValue(txn.ProviderReference),
		nullableStringValue(txn.PollURL),
		nullableStringValue(txn.VerifyHash),
		txn.ProviderStatus,
		txn.PollAttempts,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	return err
}

func (r *ProviderTransactionRepository) FindByReference(ctx context.Context, reference string) (*entity.ProviderTransaction, error) {
	query := selectProviderTransaction + `
		WHERE reference = ?
		LIMIT 1
	`

	txn := &entity.ProviderTransaction{}
	err := scanProviderTransaction(r.db.QueryRowContext(ctx, query, reference), txn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// IncrementPollAttempts bumps the counter and returns the new value so the
// poll handler can enforce its attempt cap. LAST_INSERT_ID(expr) captures
// the incremented value inside the UPDATE itself and surfaces it through
// the driver's LastInsertId, so concurrent polls each see their own count.
func (r *ProviderTransactionRepository) IncrementPollAttempts(ctx context.Context, reference string) (int32, error) {
	query := `
		UPDATE provider_transactions
		SET poll_attempts = LAST_INSERT_ID(poll_attempts + 1), updated_at = ?
		WHERE reference = ?
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), reference)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrCheckoutNotFound
	}

	attempts, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int32(attempts), nil
}

// ListStaleUnreceipted returns transaction records without a paid receipt
// that have not been touched since the cutoff; the reconcile job re-polls
// these against the provider.
func (r *ProviderTransactionRepository) ListStaleUnreceipted(ctx context.Context, before time.Time, limit int32) ([]*entity.ProviderTransaction, error) {
	query := `
		SELECT t.id, t.reference, t.provider, t.provider_reference, t.poll_url, t.verify_hash,
			t.provider_status, t.poll_attempts, t.created_at, t.updated_at
		FROM provider_transactions t
		LEFT JOIN payment_receipts r
			ON r.reference = t.reference AND r.status = ?
		WHERE r.id IS NULL
		  AND t.updated_at <= ?
		ORDER BY t.updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.ReceiptStatusPaid, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.ProviderTransaction, 0)
	for rows.Next() {
		txn := &entity.ProviderTransaction{}
		if err := scanProviderTransaction(rows, txn); err != nil {
			return nil, err
		}
		items = append(items, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

const selectProviderTransaction = `
		SELECT id, reference, provider, provider_reference, poll_url, verify_hash,
			provider_status, poll_attempts, created_at, updated_at
		FROM provider_transactions
`

func scanProviderTransaction(scan rowScanner, txn *entity.ProviderTransaction) error {
	var providerReference sql.NullString
	var pollURL sql.NullString
	var verifyHash sql.NullString

	err := scan.Scan(
		&txn.ID,
		&txn.Reference,
		&txn.Provider,
		&providerReference,
		&pollURL,
		&verifyHash,
		&txn.ProviderStatus,
		&txn.PollAttempts,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	txn.ProviderReference = stringPtrFromNull(providerReference)
	txn.PollURL = stringPtrFromNull(pollURL)
	txn.VerifyHash = stringPtrFromNull(verifyHash)

	return nil
}
