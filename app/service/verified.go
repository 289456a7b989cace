package service

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

// VerifiedPayment is evidence that a provider confirmed money moved. It can
// only be built inside this package, from a status result the provider
// reported as paid, so nothing downstream of it needs to re-check.
type VerifiedPayment struct {
	provider          string
	reference         string
	providerReference string
	status            string
	reportedAmount    decimal.Decimal
	currency          string
}

func newVerifiedPayment(providerID string, result *provider.StatusResult) (*VerifiedPayment, error) {
	if result == nil || !result.Success || !result.Paid {
		return nil, errors.New("status result is not a confirmed payment")
	}

	return &VerifiedPayment{
		provider:          strings.ToLower(strings.TrimSpace(providerID)),
		reference:         strings.TrimSpace(result.Reference),
		providerReference: strings.TrimSpace(result.ProviderReference),
		status:            strings.TrimSpace(result.Status),
		reportedAmount:    result.Amount,
		currency:          strings.ToUpper(strings.TrimSpace(result.Currency)),
	}, nil
}

func (v *VerifiedPayment) Reference() string {
	return v.reference
}

func (v *VerifiedPayment) Provider() string {
	return v.provider
}
