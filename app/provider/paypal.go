package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const paypalTokenCacheKey = "checkout:paypal:access_token"

type PayPalConfig struct {
	ClientID    string
	Secret      string
	BaseURL     string
	HTTPTimeout time.Duration
}

type PayPalGateway struct {
	cfg    PayPalConfig
	client *http.Client
	tokens TokenCache
}

func NewPayPalGateway(cfg PayPalConfig, tokens TokenCache) *PayPalGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api-m.paypal.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}

	return &PayPalGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

func (g *PayPalGateway) Identifier() string {
	return PayPal
}

func (g *PayPalGateway) Initiate(ctx context.Context, input *InitiateInput) *InitiateResult {
	if strings.TrimSpace(input.Reference) == "" {
		return &InitiateResult{Success: false, Message: "reference is required"}
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return &InitiateResult{Success: false, Message: "paypal authentication failed"}
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": input.Reference,
				"custom_id":    input.Reference,
				"description":  input.Description,
				"amount": map[string]string{
					"currency_code": strings.ToUpper(strings.TrimSpace(input.Currency)),
					"value":         input.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": input.ReturnURL,
			"cancel_url": input.ReturnURL,
		},
	}

	body, err := g.apiCall(ctx, http.MethodPost, "/v2/checkout/orders", token, payload)
	if err != nil {
		return &InitiateResult{Success: false, Message: err.Error()}
	}

	var order paypalOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return &InitiateResult{Success: false, Message: "paypal order response could not be parsed"}
	}

	approveURL := order.link("approve")
	if approveURL == "" {
		approveURL = order.link("payer-action")
	}
	if strings.TrimSpace(order.ID) == "" || approveURL == "" {
		return &InitiateResult{Success: false, Message: "paypal order is missing an approval link"}
	}

	return &InitiateResult{
		Success:           true,
		Reference:         input.Reference,
		ProviderReference: order.ID,
		RedirectURL:       approveURL,
	}
}

// CheckStatus reads the order from the PayPal API. An approved but
// uncaptured order is captured here so that a poll or reconcile pass can
// complete a payment whose redirect return was lost.
func (g *PayPalGateway) CheckStatus(ctx context.Context, query *StatusQuery) *StatusResult {
	orderID := strings.TrimSpace(query.ProviderReference)
	if orderID == "" {
		return &StatusResult{Success: false, Message: "paypal order id is missing"}
	}

	order, err := g.readOrder(ctx, orderID)
	if err != nil {
		return &StatusResult{Success: false, Message: err.Error()}
	}

	if strings.EqualFold(order.Status, "APPROVED") {
		captured, err := g.captureOrder(ctx, orderID)
		if err == nil {
			order = captured
		}
	}

	return paypalStatusResult(order)
}

func (g *PayPalGateway) HandleCallback(ctx context.Context, input *CallbackInput) *StatusResult {
	if len(bytes.TrimSpace(input.Body)) > 0 {
		return g.handleWebhookEvent(ctx, input.Body)
	}

	// Browser redirect return: PayPal appends the order id as ?token=.
	orderID := strings.TrimSpace(input.Params.Get("token"))
	if orderID == "" {
		return &StatusResult{Success: false, Message: "paypal order token is missing"}
	}

	order, err := g.captureOrder(ctx, orderID)
	if err != nil {
		// Already-captured orders reject a second capture; fall back to a read.
		order, err = g.readOrder(ctx, orderID)
		if err != nil {
			return &StatusResult{Success: false, Message: err.Error()}
		}
	}

	return paypalStatusResult(order)
}

// handleWebhookEvent discriminates on event type and never trusts the pushed
// payload for the paid decision: the order is re-read from the API.
func (g *PayPalGateway) handleWebhookEvent(ctx context.Context, body []byte) *StatusResult {
	var event struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return &StatusResult{Success: false, Message: "paypal webhook payload could not be parsed"}
	}

	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		orderID := strings.TrimSpace(event.Resource.ID)
		if orderID == "" {
			return &StatusResult{Success: false, Message: "paypal webhook is missing an order id"}
		}
		order, err := g.captureOrder(ctx, orderID)
		if err != nil {
			order, err = g.readOrder(ctx, orderID)
			if err != nil {
				return &StatusResult{Success: false, Message: err.Error()}
			}
		}
		return paypalStatusResult(order)
	case "PAYMENT.CAPTURE.COMPLETED":
		orderID := strings.TrimSpace(event.Resource.SupplementaryData.RelatedIDs.OrderID)
		if orderID == "" {
			return &StatusResult{Success: false, Message: "paypal webhook is missing the related order id"}
		}
		order, err := g.readOrder(ctx, orderID)
		if err != nil {
			return &StatusResult{Success: false, Message: err.Error()}
		}
		return paypalStatusResult(order)
	default:
		return &StatusResult{Success: true, Paid: false, Status: event.EventType}
	}
}

func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	if token, ok := g.tokens.Get(ctx, paypalTokenCacheKey); ok {
		return token, nil
	}

	if strings.TrimSpace(g.cfg.ClientID) == "" || strings.TrimSpace(g.cfg.Secret) == "" {
		return "", errors.New("paypal credentials are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("paypal token request failed: status=%d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", errors.New("paypal token response is missing access_token")
	}

	ttl := time.Duration(payload.ExpiresIn-60) * time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}
	g.tokens.Set(ctx, paypalTokenCacheKey, payload.AccessToken, ttl)

	return payload.AccessToken, nil
}

func (g *PayPalGateway) readOrder(ctx context.Context, orderID string) (*paypalOrder, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, errors.New("paypal authentication failed")
	}

	body, err := g.apiCall(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), token, nil)
	if err != nil {
		return nil, err
	}

	var order paypalOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *PayPalGateway) captureOrder(ctx context.Context, orderID string) (*paypalOrder, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, errors.New("paypal authentication failed")
	}

	body, err := g.apiCall(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", token, struct{}{})
	if err != nil {
		return nil, err
	}

	var order paypalOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *PayPalGateway) apiCall(ctx context.Context, method, path, token string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("paypal request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *paypalOrder) link(rel string) string {
	for _, item := range o.Links {
		if strings.EqualFold(item.Rel, rel) {
			return strings.TrimSpace(item.Href)
		}
	}
	return ""
}

func paypalStatusResult(order *paypalOrder) *StatusResult {
	result := &StatusResult{
		Success:           true,
		Paid:              strings.EqualFold(order.Status, "COMPLETED"),
		Status:            order.Status,
		ProviderReference: order.ID,
	}

	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		result.Reference = strings.TrimSpace(unit.ReferenceID)
		if amount, err := decimal.NewFromString(strings.TrimSpace(unit.Amount.Value)); err == nil {
			result.Amount = amount
		}
		result.Currency = strings.ToUpper(strings.TrimSpace(unit.Amount.CurrencyCode))
		if len(unit.Payments.Captures) > 0 && strings.TrimSpace(unit.Payments.Captures[0].ID) != "" {
			result.ProviderReference = strings.TrimSpace(unit.Payments.Captures[0].ID)
		}
	}

	return result
}
