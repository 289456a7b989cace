package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the slice of the commerce platform's order the reconciliation
// engine needs: the id, the authoritative total, and how the payment
// attempt was keyed.
type Order struct {
	ID                uint64          `json:"id"`
	Total             decimal.Decimal `json:"total"`
	PaymentReference  string          `json:"payment_reference"`
	PaymentPercentage int32           `json:"payment_percentage"`
}

type PaymentSync struct {
	OrderID           uint64          `json:"order_id"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	Provider          string          `json:"provider"`
	ProviderReference string          `json:"provider_reference"`
}

type Config struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

// Client talks to the external commerce platform that owns orders. Checkout
// payloads pass through it opaquely; this service never inspects them.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type orderEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order"`
}

func (c *Client) CreateOrder(ctx context.Context, payload json.RawMessage) (*Order, error) {
	body, err := c.call(ctx, http.MethodPost, "/api/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var envelope orderEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success || envelope.Order == nil {
		message := strings.TrimSpace(envelope.Message)
		if message == "" {
			message = "order creation was rejected"
		}
		return nil, errors.New(message)
	}

	return envelope.Order, nil
}

func (c *Client) GetOrder(ctx context.Context, id uint64) (*Order, error) {
	return c.fetchOrder(ctx, "/api/orders/"+strconv.FormatUint(id, 10))
}

// FindOrderByPaymentReference resolves the order-first flow: orders created
// before payment carry the payment reference on the platform side.
func (c *Client) FindOrderByPaymentReference(ctx context.Context, reference string) (*Order, error) {
	return c.fetchOrder(ctx, "/api/orders/by-payment-reference/"+url.PathEscape(reference))
}

func (c *Client) fetchOrder(ctx context.Context, path string) (*Order, error) {
	body, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var envelope orderEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success || envelope.Order == nil {
		return nil, nil
	}

	return envelope.Order, nil
}

// SyncPayment notifies the platform of the amount actually collected.
// Failure here never affects payment correctness; the receipt is already
// durable and the dispatch worker retries.
func (c *Client) SyncPayment(ctx context.Context, sync *PaymentSync) error {
	payload, err := json.Marshal(sync)
	if err != nil {
		return err
	}

	path := "/api/orders/" + strconv.FormatUint(sync.OrderID, 10) + "/payments"
	_, err = c.call(ctx, http.MethodPost, path, bytes.NewReader(payload))
	return err
}

var errNotFound = errors.New("order not found")

func (c *Client) call(ctx context.Context, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
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
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("commerce platform request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}
