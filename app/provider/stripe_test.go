package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	ts := time.Now().Unix()
	signed := fmt.Sprintf("%d.%s", ts, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	sig := hex.EncodeToString(mac.Sum(nil))
	header := fmt.Sprintf("t=%d,v1=%s", ts, sig)

	if !verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected signature to validate")
	}
	if verifyStripeSignature(payload, header, "wrong-secret", 300) {
		t.Fatal("expected signature with wrong secret to fail")
	}
}

func TestVerifyStripeSignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	ts := time.Now().Add(-time.Hour).Unix()
	signed := fmt.Sprintf("%d.%s", ts, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	if verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected stale timestamp to fail")
	}
}

func TestStripeHandleCallbackCompletedSession(t *testing.T) {
	secret := "whsec_test"
	gateway := NewStripeGateway(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret})

	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"status": "complete",
			"payment_status": "paid",
			"amount_total": 7500,
			"currency": "usd",
			"client_reference_id": "SF-1000",
			"payment_intent": "pi_123"
		}}
	}`)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))

	result := gateway.HandleCallback(context.Background(), &CallbackInput{Body: payload, Headers: headers})
	if !result.Success || !result.Paid {
		t.Fatalf("expected paid result, got %+v", result)
	}
	if result.Reference != "SF-1000" {
		t.Fatalf("expected reference SF-1000, got %q", result.Reference)
	}
	if result.ProviderReference != "pi_123" {
		t.Fatalf("expected payment intent as provider reference, got %q", result.ProviderReference)
	}
	if !result.Amount.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("expected amount 75.00, got %s", result.Amount.String())
	}
}

func TestStripeHandleCallbackRejectsBadSignature(t *testing.T) {
	gateway := NewStripeGateway(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"})

	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=1,v1=deadbeef")

	result := gateway.HandleCallback(context.Background(), &CallbackInput{Body: []byte(`{}`), Headers: headers})
	if result.Success {
		t.Fatal("expected invalid signature to be rejected")
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"75.00", 7500},
		{"0.99", 99},
		{"10", 1000},
		{"19.995", 2000},
	}
	for _, tc := range cases {
		got := minorUnits(decimal.RequireFromString(tc.amount))
		if got != tc.want {
			t.Fatalf("minorUnits(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}
