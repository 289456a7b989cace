package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var ErrReceiptAlreadyExists = errors.New("payment receipt already exists")

type ReceiptRepository struct {
	db DBTX
}

func NewReceiptRepository(db DBTX) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create appends a receipt. The unique key on (reference, status) is the
// storage-level backstop for the one-paid-receipt-per-reference invariant;
// a duplicate insert surfaces as ErrReceiptAlreadyExists.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *entity.PaymentReceipt) error {
	metadataJSON, err := serializeMetadata(receipt.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_receipts (
			order_id, provider, reference, provider_reference, amount, currency,
			metadata_json, status, paid_at,
			sync_status, sync_attempts, sync_next_at, sync_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		receipt.OrderID,
		receipt.Provider,
		receipt.Reference,
		receipt.ProviderReference,
		decimalValue(receipt.Amount),
		receipt.Currency,
		metadataJSON,
		receipt.Status,
		receipt.PaidAt,
		receipt.SyncStatus,
		receipt.SyncAttempts,
		nullableTimeValue(receipt.SyncNextAt),
		nullableStringValue(receipt.SyncLastErr),
		receipt.CreatedAt,
		receipt.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrReceiptAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	receipt.ID = uint64(id)
	return nil
}

func (r *ReceiptRepository) FindPaidByReference(ctx context.Context, reference string) (*entity.PaymentReceipt, error) {
	query := selectReceipt + `
		WHERE reference = ? AND status = ?
		LIMIT 1
	`

	receipt := &entity.PaymentReceipt{}
	err := scanReceipt(r.db.QueryRowContext(ctx, query, reference, entity.ReceiptStatusPaid), receipt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Update only touches the sync-delivery bookkeeping; the payment fields of a
// receipt are immutable once written.
func (r *ReceiptRepository) Update(ctx context.Context, receipt *entity.PaymentReceipt) error {
	query := `
		UPDATE payment_receipts SET
			sync_status = ?,
			sync_attempts = ?,
			sync_next_at = ?,
			sync_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		receipt.SyncStatus,
		receipt.SyncAttempts,
		nullableTimeValue(receipt.SyncNextAt),
		nullableStringValue(receipt.SyncLastErr),
		receipt.UpdatedAt,
		receipt.ID,
	)
	return err
}

func (r *ReceiptRepository) ListDueSyncDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentReceipt, error) {
	query := selectReceipt + `
		WHERE sync_status = ?
		  AND sync_next_at IS NOT NULL
		  AND sync_next_at <= ?
		ORDER BY sync_next_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.SyncDeliveryPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]*entity.PaymentReceipt, 0)
	for rows.Next() {
		item := &entity.PaymentReceipt{}
		if err := scanReceipt(rows, item); err != nil {
			return nil, err
		}
		receipts = append(receipts, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return receipts, nil
}

const selectReceipt = `
		SELECT id, order_id, provider, reference, provider_reference, amount, currency,
			metadata_json, status, paid_at,
			sync_status, sync_attempts, sync_next_at, sync_last_error,
			created_at, updated_at
		FROM payment_receipts
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(scan rowScanner, receipt *entity.PaymentReceipt) error {
	var amountRaw string
	var metadataJSON string
	var syncNextAt sql.NullTime
	var syncLastErr sql.NullString

	err := scan.Scan(
		&receipt.ID,
		&receipt.OrderID,
		&receipt.Provider,
		&receipt.Reference,
		&receipt.ProviderReference,
		&amountRaw,
		&receipt.Currency,
		&metadataJSON,
		&receipt.Status,
		&receipt.PaidAt,
		&receipt.SyncStatus,
		&receipt.SyncAttempts,
		&syncNextAt,
		&syncLastErr,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return err
	}

	amount, err := parseDecimalColumn(amountRaw)
	if err != nil {
		return err
	}
	receipt.Amount = amount

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	receipt.Metadata = metadata

	receipt.SyncNextAt = timePtrFromNull(syncNextAt)
	receipt.SyncLastErr = stringPtrFromNull(syncLastErr)

	return nil
}
