package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

func newPayPalTestServer(t *testing.T, tokenCalls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			atomic.AddInt64(tokenCalls, 1)
			if _, _, ok := r.BasicAuth(); !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "token-1",
				"expires_in":   3600,
			})
		case r.URL.Path == "/v2/checkout/orders" && r.Method == http.MethodPost:
			if r.Header.Get("Authorization") != "Bearer token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ORDER-1",
				"status": "CREATED",
				"links": []map[string]string{
					{"rel": "approve", "href": "https://paypal.example/approve/ORDER-1"},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/capture"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ORDER-1",
				"status": "COMPLETED",
				"purchase_units": []map[string]interface{}{
					{
						"reference_id": "SF-1000",
						"amount":       map[string]string{"currency_code": "USD", "value": "75.00"},
						"payments": map[string]interface{}{
							"captures": []map[string]string{{"id": "CAP-1", "status": "COMPLETED"}},
						},
					},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/v2/checkout/orders/"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ORDER-1",
				"status": "COMPLETED",
				"purchase_units": []map[string]interface{}{
					{
						"reference_id": "SF-1000",
						"amount":       map[string]string{"currency_code": "USD", "value": "75.00"},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestPayPalInitiateReturnsApprovalLink(t *testing.T) {
	var tokenCalls int64
	server := newPayPalTestServer(t, &tokenCalls)
	defer server.Close()

	gateway := NewPayPalGateway(PayPalConfig{
		ClientID: "client", Secret: "secret", BaseURL: server.URL,
	}, NewMemoryTokenCache())

	result := gateway.Initiate(context.Background(), &InitiateInput{
		Reference: "SF-1000",
		Amount:    decimal.RequireFromString("75.00"),
		Currency:  "USD",
		ReturnURL: "https://checkout.example/payments/callback/paypal",
	})
	if !result.Success {
		t.Fatalf("initiate failed: %s", result.Message)
	}
	if result.ProviderReference != "ORDER-1" {
		t.Fatalf("expected order id as provider reference, got %q", result.ProviderReference)
	}
	if result.RedirectURL != "https://paypal.example/approve/ORDER-1" {
		t.Fatalf("unexpected redirect url: %s", result.RedirectURL)
	}
}

func TestPayPalAccessTokenIsCached(t *testing.T) {
	var tokenCalls int64
	server := newPayPalTestServer(t, &tokenCalls)
	defer server.Close()

	gateway := NewPayPalGateway(PayPalConfig{
		ClientID: "client", Secret: "secret", BaseURL: server.URL,
	}, NewMemoryTokenCache())

	input := &InitiateInput{
		Reference: "SF-1000",
		Amount:    decimal.RequireFromString("75.00"),
		Currency:  "USD",
		ReturnURL: "https://checkout.example/payments/callback/paypal",
	}
	for i := 0; i < 3; i++ {
		if result := gateway.Initiate(context.Background(), input); !result.Success {
			t.Fatalf("initiate %d failed: %s", i, result.Message)
		}
	}

	if got := atomic.LoadInt64(&tokenCalls); got != 1 {
		t.Fatalf("expected one token request, got %d", got)
	}
}

func TestPayPalRedirectReturnCapturesOrder(t *testing.T) {
	var tokenCalls int64
	server := newPayPalTestServer(t, &tokenCalls)
	defer server.Close()

	gateway := NewPayPalGateway(PayPalConfig{
		ClientID: "client", Secret: "secret", BaseURL: server.URL,
	}, NewMemoryTokenCache())

	params := url.Values{"token": {"ORDER-1"}}
	result := gateway.HandleCallback(context.Background(), &CallbackInput{Params: params})
	if !result.Success || !result.Paid {
		t.Fatalf("expected captured paid result, got %+v", result)
	}
	if result.Reference != "SF-1000" {
		t.Fatalf("expected reference SF-1000, got %q", result.Reference)
	}
	if result.ProviderReference != "CAP-1" {
		t.Fatalf("expected capture id as provider reference, got %q", result.ProviderReference)
	}
}

func TestPayPalWebhookReReadsOrderForCaptureCompleted(t *testing.T) {
	var tokenCalls int64
	server := newPayPalTestServer(t, &tokenCalls)
	defer server.Close()

	gateway := NewPayPalGateway(PayPalConfig{
		ClientID: "client", Secret: "secret", BaseURL: server.URL,
	}, NewMemoryTokenCache())

	event := []byte(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-1",
			"supplementary_data": {"related_ids": {"order_id": "ORDER-1"}}
		}
	}`)

	result := gateway.HandleCallback(context.Background(), &CallbackInput{Body: event})
	if !result.Success || !result.Paid {
		t.Fatalf("expected paid result from webhook, got %+v", result)
	}
	if !result.Amount.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("expected amount 75.00 from re-read order, got %s", result.Amount.String())
	}
}

func TestPayPalWebhookIgnoresUnknownEventTypes(t *testing.T) {
	gateway := NewPayPalGateway(PayPalConfig{ClientID: "client", Secret: "secret"}, NewMemoryTokenCache())

	result := gateway.HandleCallback(context.Background(), &CallbackInput{Body: []byte(`{"event_type":"BILLING.PLAN.CREATED"}`)})
	if !result.Success || result.Paid {
		t.Fatalf("expected acknowledged non-paid result, got %+v", result)
	}
}
