package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

func TestPendingCheckoutClaimMovesExactlyOneRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE pending_checkouts").
		WithArgs(entity.PendingCheckoutStatusClaimed, sqlmock.AnyArg(), "SF-1000", entity.PendingCheckoutStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPendingCheckoutRepository(db)
	claimed, err := repo.Claim(context.Background(), "SF-1000")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed when one row is affected")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPendingCheckoutClaimLosesWhenNoRowAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE pending_checkouts").
		WithArgs(entity.PendingCheckoutStatusClaimed, sqlmock.AnyArg(), "SF-1000", entity.PendingCheckoutStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPendingCheckoutRepository(db)
	claimed, err := repo.Claim(context.Background(), "SF-1000")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed {
		t.Fatal("expected claim to lose when the row was already claimed")
	}
}

func TestPendingCheckoutUpsertGuardsNonPendingRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	item := &entity.PendingCheckout{
		Reference:         "SF-1000",
		Provider:          "web_redirect",
		Amount:            decimal.RequireFromString("75.00"),
		Currency:          "USD",
		PaymentPercentage: 75,
		CheckoutPayload:   json.RawMessage(`{"items":[]}`),
		Status:            entity.PendingCheckoutStatusPending,
		ExpiresAt:         now.Add(time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	pending := entity.PendingCheckoutStatusPending
	mock.ExpectExec("INSERT INTO pending_checkouts").
		WithArgs(
			item.Reference, item.Provider, "75", item.Currency, item.PaymentPercentage,
			string(item.CheckoutPayload), entity.PendingCheckoutStatusPending,
			item.ExpiresAt, item.CreatedAt, item.UpdatedAt,
			pending, pending, pending, pending, pending, pending, pending,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewPendingCheckoutRepository(db)
	if err := repo.Upsert(context.Background(), item); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPendingCheckoutFindByReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "reference", "provider", "amount", "currency", "payment_percentage",
		"checkout_payload", "status", "expires_at", "created_at", "updated_at",
	}).AddRow(
		1, "SF-1000", "web_redirect", "75.00", "USD", int32(75),
		`{"items":[]}`, entity.PendingCheckoutStatusPending, now.Add(time.Hour), now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM pending_checkouts").
		WithArgs("SF-1000").
		WillReturnRows(rows)

	repo := NewPendingCheckoutRepository(db)
	item, err := repo.FindByReference(context.Background(), "SF-1000")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected pending checkout")
	}
	if !item.Amount.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("expected amount 75.00, got %s", item.Amount.String())
	}
	if item.PaymentPercentage != 75 {
		t.Fatalf("expected percentage 75, got %d", item.PaymentPercentage)
	}
}

func TestPendingCheckoutFindByReferenceMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM pending_checkouts").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewPendingCheckoutRepository(db)
	item, err := repo.FindByReference(context.Background(), "missing")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if item != nil {
		t.Fatal("expected nil for missing reference")
	}
}
