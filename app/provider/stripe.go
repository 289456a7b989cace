package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type StripeGateway struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}
	cfg.SignatureToleranceSeconds = tolerance

	return &StripeGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *StripeGateway) Identifier() string {
	return Stripe
}

func (g *StripeGateway) Initiate(ctx context.Context, input *InitiateInput) *InitiateResult {
	if strings.TrimSpace(g.cfg.SecretKey) == "" {
		return &InitiateResult{Success: false, Message: "stripe secret key is not configured"}
	}
	if strings.TrimSpace(input.Reference) == "" {
		return &InitiateResult{Success: false, Message: "reference is required"}
	}

	name := strings.TrimSpace(input.Description)
	if name == "" {
		name = "order " + input.Reference
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(strings.TrimSpace(input.Currency)))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(minorUnits(input.Amount), 10))
	values.Set("line_items[0][price_data][product_data][name]", name)
	values.Set("success_url", input.ReturnURL)
	values.Set("cancel_url", input.ReturnURL)
	values.Set("client_reference_id", input.Reference)
	for k, v := range input.Metadata {
		values.Set("metadata["+k+"]", v)
	}
	values.Set("metadata[reference]", input.Reference)

	body, err := g.postForm(ctx, "/v1/checkout/sessions", values)
	if err != nil {
		return &InitiateResult{Success: false, Message: err.Error()}
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return &InitiateResult{Success: false, Message: "stripe session response could not be parsed"}
	}
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.URL) == "" {
		return &InitiateResult{Success: false, Message: "stripe session is missing id or url"}
	}

	return &InitiateResult{
		Success:           true,
		Reference:         input.Reference,
		ProviderReference: strings.TrimSpace(session.ID),
		RedirectURL:       strings.TrimSpace(session.URL),
	}
}

func (g *StripeGateway) CheckStatus(ctx context.Context, query *StatusQuery) *StatusResult {
	sessionID := strings.TrimSpace(query.ProviderReference)
	if sessionID == "" {
		return &StatusResult{Success: false, Message: "stripe session id is missing"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.stripe.com/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return &StatusResult{Success: false, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return &StatusResult{Success: false, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &StatusResult{Success: false, Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return &StatusResult{Success: false, Message: fmt.Sprintf("stripe get checkout session failed: status=%d", resp.StatusCode)}
	}

	var session stripeSession
	if err := json.Unmarshal(body, &session); err != nil {
		return &StatusResult{Success: false, Message: "stripe session response could not be parsed"}
	}

	return stripeStatusResult(&session)
}

func (g *StripeGateway) HandleCallback(_ context.Context, input *CallbackInput) *StatusResult {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return &StatusResult{Success: false, Message: "stripe webhook secret is not configured"}
	}

	signature := strings.TrimSpace(input.Headers.Get("Stripe-Signature"))
	if !verifyStripeSignature(input.Body, signature, g.cfg.WebhookSecret, g.cfg.SignatureToleranceSeconds) {
		return &StatusResult{Success: false, Message: "invalid stripe signature"}
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(input.Body, &event); err != nil {
		return &StatusResult{Success: false, Message: "stripe event payload could not be parsed"}
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var session stripeSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return &StatusResult{Success: false, Message: "stripe session object could not be parsed"}
		}
		return stripeStatusResult(&session)
	default:
		return &StatusResult{Success: true, Paid: false, Status: event.Type}
	}
}

func (g *StripeGateway) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.stripe.com"+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

type stripeSession struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	ClientReferenceID string `json:"client_reference_id"`
	PaymentIntent     string `json:"payment_intent"`
}

func stripeStatusResult(session *stripeSession) *StatusResult {
	providerReference := strings.TrimSpace(session.PaymentIntent)
	if providerReference == "" {
		providerReference = strings.TrimSpace(session.ID)
	}

	paid := false
	switch session.PaymentStatus {
	case "paid", "no_payment_required":
		paid = true
	}

	status := strings.TrimSpace(session.PaymentStatus)
	if strings.EqualFold(session.Status, "expired") {
		paid = false
		status = "expired"
	}

	return &StatusResult{
		Success:           true,
		Paid:              paid,
		Status:            status,
		Reference:         strings.TrimSpace(session.ClientReferenceID),
		ProviderReference: providerReference,
		Amount:            decimal.New(session.AmountTotal, -2),
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
	}
}

// minorUnits converts a decimal currency amount to integer minor units. This
// is the only boundary where amounts leave decimal representation.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
