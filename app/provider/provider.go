package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

const (
	Cash        = "cash"
	MobilePush  = "mobile_push"
	WebRedirect = "web_redirect"
	PayPal      = "paypal"
	Stripe      = "stripe"
)

type InitiateInput struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Phone       string
	Description string

	ReturnURL string
	ResultURL string

	Metadata map[string]string
}

type InitiateResult struct {
	Success bool
	Message string

	Reference         string
	ProviderReference string
	RedirectURL       string
	PollURL           string
	Instructions      string
}

type StatusQuery struct {
	Reference         string
	ProviderReference string
	PollURL           string
}

type StatusResult struct {
	Success bool
	Message string

	Paid   bool
	Status string

	Reference         string
	ProviderReference string
	Amount            decimal.Decimal
	Currency          string
}

type CallbackInput struct {
	Params  url.Values
	Body    []byte
	Headers http.Header
}

// Gateway is the single contract every payment provider implements. Network,
// auth, and provider-side failures never escape as errors; they come back as
// results with Success=false and a message.
type Gateway interface {
	Identifier() string
	Initiate(ctx context.Context, input *InitiateInput) *InitiateResult
	CheckStatus(ctx context.Context, query *StatusQuery) *StatusResult
	HandleCallback(ctx context.Context, input *CallbackInput) *StatusResult
}
