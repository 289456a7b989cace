package provider

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaynowConfig struct {
	IntegrationID  string
	IntegrationKey string
	BaseURL        string
	MobileMethod   string
	HTTPTimeout    time.Duration
}

// PaynowGateway serves both the mobile-push and web-redirect provider
// identifiers from one underlying Paynow integration. The wire format is
// urlencoded forms authenticated by a SHA512 hash over the ordered field
// values plus the integration key.
type PaynowGateway struct {
	identifier string
	mobile     bool
	client     *paynowClient
}

// NewPaynowGateways returns the mobile-push and web-redirect gateways backed
// by a shared client.
func NewPaynowGateways(cfg PaynowConfig) (*PaynowGateway, *PaynowGateway) {
	client := newPaynowClient(cfg)
	mobile := &PaynowGateway{identifier: MobilePush, mobile: true, client: client}
	web := &PaynowGateway{identifier: WebRedirect, client: client}
	return mobile, web
}

func (g *PaynowGateway) Identifier() string {
	return g.identifier
}

func (g *PaynowGateway) Initiate(ctx context.Context, input *InitiateInput) *InitiateResult {
	if strings.TrimSpace(g.client.cfg.IntegrationID) == "" || strings.TrimSpace(g.client.cfg.IntegrationKey) == "" {
		return &InitiateResult{Success: false, Message: "paynow integration is not configured"}
	}
	if strings.TrimSpace(input.Reference) == "" {
		return &InitiateResult{Success: false, Message: "reference is required"}
	}
	if g.mobile && strings.TrimSpace(input.Phone) == "" {
		return &InitiateResult{Success: false, Message: "phone number is required for mobile push"}
	}

	fields := [][2]string{
		{"resulturl", input.ResultURL},
		{"returnurl", input.ReturnURL},
		{"reference", input.Reference},
		{"amount", input.Amount.StringFixed(2)},
		{"id", g.client.cfg.IntegrationID},
		{"additionalinfo", input.Description},
		{"authemail", input.Email},
		{"status", "Message"},
	}

	endpoint := "/interface/initiatetransaction"
	if g.mobile {
		endpoint = "/interface/remotetransaction"
		fields = append(fields,
			[2]string{"phone", input.Phone},
			[2]string{"method", g.client.mobileMethod()},
		)
	}

	values, err := g.client.postFields(ctx, endpoint, fields)
	if err != nil {
		return &InitiateResult{Success: false, Message: err.Error()}
	}

	if !strings.EqualFold(strings.TrimSpace(values.Get("status")), "ok") {
		message := strings.TrimSpace(values.Get("error"))
		if message == "" {
			message = "paynow rejected the transaction"
		}
		return &InitiateResult{Success: false, Message: message}
	}

	return &InitiateResult{
		Success:           true,
		Reference:         input.Reference,
		ProviderReference: strings.TrimSpace(values.Get("paynowreference")),
		RedirectURL:       strings.TrimSpace(values.Get("browserurl")),
		PollURL:           strings.TrimSpace(values.Get("pollurl")),
		Instructions:      strings.TrimSpace(values.Get("instructions")),
	}
}

func (g *PaynowGateway) CheckStatus(ctx context.Context, query *StatusQuery) *StatusResult {
	pollURL := strings.TrimSpace(query.PollURL)
	if pollURL == "" {
		return &StatusResult{Success: false, Message: "poll url is missing"}
	}

	body, err := g.client.post(ctx, pollURL, nil)
	if err != nil {
		return &StatusResult{Success: false, Message: err.Error()}
	}

	values, ok := g.client.verifySignedBody(body)
	if !ok {
		return &StatusResult{Success: false, Message: "invalid paynow hash on poll response"}
	}

	return paynowStatusResult(values)
}

func (g *PaynowGateway) HandleCallback(_ context.Context, input *CallbackInput) *StatusResult {
	body := input.Body
	if len(body) == 0 {
		body = []byte(input.Params.Encode())
	}

	values, ok := g.client.verifySignedBody(body)
	if !ok {
		return &StatusResult{Success: false, Message: "invalid paynow hash"}
	}

	return paynowStatusResult(values)
}

type paynowClient struct {
	cfg    PaynowConfig
	client *http.Client
}

func newPaynowClient(cfg PaynowConfig) *paynowClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://www.paynow.co.zw"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &paynowClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *paynowClient) mobileMethod() string {
	method := strings.ToLower(strings.TrimSpace(c.cfg.MobileMethod))
	if method == "" {
		method = "ecocash"
	}
	return method
}

// postFields encodes the form by hand: the hash covers the field values in
// the order they are posted, which url.Values.Encode would not preserve.
func (c *paynowClient) postFields(ctx context.Context, path string, fields [][2]string) (url.Values, error) {
	var form strings.Builder
	var concat strings.Builder
	for i, field := range fields {
		if i > 0 {
			form.WriteByte('&')
		}
		form.WriteString(url.QueryEscape(field[0]))
		form.WriteByte('=')
		form.WriteString(url.QueryEscape(field[1]))
		concat.WriteString(field[1])
	}
	form.WriteString("&hash=")
	form.WriteString(c.hash(concat.String()))

	body, err := c.post(ctx, c.cfg.BaseURL+path, strings.NewReader(form.String()))
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("paynow response is not urlencoded: %w", err)
	}
	return values, nil
}

func (c *paynowClient) post(ctx context.Context, target string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("paynow request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return body, nil
}

// verifySignedBody checks the shared hash field over the raw urlencoded body.
// Paynow hashes the decoded values in the order they were sent, excluding the
// hash field itself, with the integration key appended.
func (c *paynowClient) verifySignedBody(raw []byte) (url.Values, bool) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, false
	}

	received := strings.ToUpper(strings.TrimSpace(values.Get("hash")))
	if received == "" {
		return nil, false
	}

	var concat strings.Builder
	for _, pair := range strings.Split(string(raw), "&") {
		key, value, _ := strings.Cut(pair, "=")
		if strings.EqualFold(key, "hash") {
			continue
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return nil, false
		}
		concat.WriteString(decoded)
	}

	expected := c.hash(concat.String())
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return nil, false
	}

	return values, true
}

func (c *paynowClient) hash(concat string) string {
	sum := sha512.Sum512([]byte(concat + c.cfg.IntegrationKey))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func paynowStatusResult(values url.Values) *StatusResult {
	status := strings.TrimSpace(values.Get("status"))
	amount, _ := decimal.NewFromString(strings.TrimSpace(values.Get("amount")))

	return &StatusResult{
		Success:           true,
		Paid:              paynowPaidStatus(status),
		Status:            status,
		Reference:         strings.TrimSpace(values.Get("reference")),
		ProviderReference: strings.TrimSpace(values.Get("paynowreference")),
		Amount:            amount,
	}
}

func paynowPaidStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "awaiting delivery", "delivered":
		return true
	default:
		return false
	}
}
