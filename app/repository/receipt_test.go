package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

func paidReceiptFixture(now time.Time) *entity.PaymentReceipt {
	return &entity.PaymentReceipt{
		OrderID:           42,
		Provider:          "web_redirect",
		Reference:         "SF-1000",
		ProviderReference: "PN-99",
		Amount:            decimal.RequireFromString("75.00"),
		Currency:          "USD",
		Metadata:          map[string]string{"provider_status": "Paid"},
		Status:            entity.ReceiptStatusPaid,
		PaidAt:            now,
		SyncStatus:        entity.SyncDeliveryPending,
		SyncNextAt:        &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestReceiptCreateAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO payment_receipts").
		WillReturnResult(sqlmock.NewResult(7, 1))

	repo := NewReceiptRepository(db)
	receipt := paidReceiptFixture(time.Now().UTC())
	if err := repo.Create(context.Background(), receipt); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if receipt.ID != 7 {
		t.Fatalf("expected id 7, got %d", receipt.ID)
	}
}

func TestReceiptCreateDuplicateMapsToAlreadyExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO payment_receipts").
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'SF-1000-10'"})

	repo := NewReceiptRepository(db)
	err = repo.Create(context.Background(), paidReceiptFixture(time.Now().UTC()))
	if !errors.Is(err, ErrReceiptAlreadyExists) {
		t.Fatalf("expected ErrReceiptAlreadyExists, got %v", err)
	}
}

func TestReceiptFindPaidByReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "order_id", "provider", "reference", "provider_reference", "amount", "currency",
		"metadata_json", "status", "paid_at",
		"sync_status", "sync_attempts", "sync_next_at", "sync_last_error",
		"created_at", "updated_at",
	}).AddRow(
		7, 42, "web_redirect", "SF-1000", "PN-99", "75.00", "USD",
		`{"provider_status":"Paid"}`, entity.ReceiptStatusPaid, now,
		entity.SyncDeliveryPending, 0, now, nil,
		now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM payment_receipts").
		WithArgs("SF-1000", entity.ReceiptStatusPaid).
		WillReturnRows(rows)

	repo := NewReceiptRepository(db)
	receipt, err := repo.FindPaidByReference(context.Background(), "SF-1000")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if receipt == nil {
		t.Fatal("expected receipt")
	}
	if receipt.OrderID != 42 {
		t.Fatalf("expected order id 42, got %d", receipt.OrderID)
	}
	if !receipt.Amount.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("expected amount 75.00, got %s", receipt.Amount.String())
	}
	if receipt.Metadata["provider_status"] != "Paid" {
		t.Fatalf("expected provider status metadata, got %+v", receipt.Metadata)
	}
}

func TestReceiptListDueSyncDispatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "order_id", "provider", "reference", "provider_reference", "amount", "currency",
		"metadata_json", "status", "paid_at",
		"sync_status", "sync_attempts", "sync_next_at", "sync_last_error",
		"created_at", "updated_at",
	}).AddRow(
		7, 42, "stripe", "SF-1000", "pi_123", "75.00", "USD",
		`{}`, entity.ReceiptStatusPaid, now,
		entity.SyncDeliveryPending, 1, now, "platform timeout",
		now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM payment_receipts").
		WithArgs(entity.SyncDeliveryPending, sqlmock.AnyArg(), int32(100)).
		WillReturnRows(rows)

	repo := NewReceiptRepository(db)
	items, err := repo.ListDueSyncDispatch(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one receipt, got %d", len(items))
	}
	if items[0].SyncLastErr == nil || *items[0].SyncLastErr != "platform timeout" {
		t.Fatal("expected sync last error to round-trip")
	}
}
