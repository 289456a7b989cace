package provider

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// CashGateway handles cash-on-delivery. Initiation is a no-op (the order
// already exists), and payment is confirmed through an internal callback
// once cash is actually collected.
type CashGateway struct{}

func NewCashGateway() *CashGateway {
	return &CashGateway{}
}

func (g *CashGateway) Identifier() string {
	return Cash
}

func (g *CashGateway) Initiate(_ context.Context, input *InitiateInput) *InitiateResult {
	if strings.TrimSpace(input.Reference) == "" {
		return &InitiateResult{Success: false, Message: "reference is required"}
	}
	return &InitiateResult{
		Success:      true,
		Reference:    input.Reference,
		Instructions: "payment due on delivery",
	}
}

func (g *CashGateway) CheckStatus(_ context.Context, query *StatusQuery) *StatusResult {
	return &StatusResult{
		Success:   true,
		Paid:      false,
		Status:    "pending_delivery",
		Reference: query.Reference,
	}
}

func (g *CashGateway) HandleCallback(_ context.Context, input *CallbackInput) *StatusResult {
	reference := strings.TrimSpace(input.Params.Get("reference"))
	if reference == "" {
		return &StatusResult{Success: false, Message: "reference is required"}
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(input.Params.Get("amount")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return &StatusResult{Success: false, Message: "invalid amount"}
		}
		amount = parsed
	}

	return &StatusResult{
		Success:           true,
		Paid:              true,
		Status:            "collected",
		Reference:         reference,
		ProviderReference: strings.TrimSpace(input.Params.Get("receipt_number")),
		Amount:            amount,
	}
}
