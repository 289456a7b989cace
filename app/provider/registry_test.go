package provider

import (
	"errors"
	"testing"
)

func TestRegistryResolvesKnownProviders(t *testing.T) {
	mobile, web := NewPaynowGateways(PaynowConfig{IntegrationID: "1234", IntegrationKey: "key"})
	registry := NewRegistry(
		NewCashGateway(),
		mobile,
		web,
		NewPayPalGateway(PayPalConfig{ClientID: "c", Secret: "s"}, NewMemoryTokenCache()),
		NewStripeGateway(StripeConfig{SecretKey: "sk", WebhookSecret: "whsec"}),
	)

	for _, identifier := range []string{Cash, MobilePush, WebRedirect, PayPal, Stripe} {
		gateway, err := registry.Get(identifier)
		if err != nil {
			t.Fatalf("expected %q to resolve, got %v", identifier, err)
		}
		if gateway.Identifier() != identifier {
			t.Fatalf("expected identifier %q, got %q", identifier, gateway.Identifier())
		}
	}

	if _, err := registry.Get(" Stripe "); err != nil {
		t.Fatalf("expected case-insensitive lookup, got %v", err)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry(NewCashGateway())

	if _, err := registry.Get("bitcoin"); !errors.Is(err, ErrProviderNotSupported) {
		t.Fatalf("expected ErrProviderNotSupported, got %v", err)
	}
	if registry.Supports("bitcoin") {
		t.Fatal("expected Supports to be false for unknown provider")
	}
}
