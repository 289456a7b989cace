package types

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

type InitiateCheckoutRequest struct {
	Reference         string            `json:"reference"`
	Provider          string            `json:"provider"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	PaymentPercentage int32             `json:"payment_percentage"`
	Email             string            `json:"email"`
	Phone             string            `json:"phone"`
	Description       string            `json:"description"`
	CheckoutPayload   json.RawMessage   `json:"checkout_payload"`
	Metadata          map[string]string `json:"metadata"`
}

func NewInitiateCheckoutRequestFromContext(ctx echo.Context) (*InitiateCheckoutRequest, error) {
	req := &InitiateCheckoutRequest{}
	if err := ctx.Bind(req); err != nil {
		return nil, err
	}

	req.Reference = strings.TrimSpace(req.Reference)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Description = strings.TrimSpace(req.Description)
	if req.PaymentPercentage == 0 {
		req.PaymentPercentage = 100
	}

	return req, nil
}

func (r *InitiateCheckoutRequest) Validate() error {
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("amount must be greater than zero")
	}
	if r.PaymentPercentage != 75 && r.PaymentPercentage != 100 {
		return errors.New("payment_percentage must be 75 or 100")
	}
	if r.Provider == provider.MobilePush && r.Phone == "" {
		return errors.New("phone is required for mobile payments")
	}
	if r.Provider != provider.Cash && len(r.CheckoutPayload) == 0 {
		return errors.New("checkout_payload is required")
	}
	return nil
}

type ConfirmCashPaymentRequest struct {
	Reference     string `json:"-"`
	ReceiptNumber string `json:"receipt_number"`
}

func NewConfirmCashPaymentRequestFromContext(ctx echo.Context) (*ConfirmCashPaymentRequest, error) {
	req := &ConfirmCashPaymentRequest{}
	if err := ctx.Bind(req); err != nil {
		return nil, err
	}
	req.Reference = strings.TrimSpace(ctx.Param("reference"))
	req.ReceiptNumber = strings.TrimSpace(req.ReceiptNumber)
	return req, nil
}

func (r *ConfirmCashPaymentRequest) Validate() error {
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	return nil
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type InitiateCheckoutResponse struct {
	Success      bool   `json:"success"`
	Reference    string `json:"reference"`
	Provider     string `json:"provider"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	PollPath     string `json:"poll_path,omitempty"`
}

type PaymentStatusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Paid      bool   `json:"paid"`
	Final     bool   `json:"final"`
	OrderID   uint64 `json:"order_id,omitempty"`
	Message   string `json:"message,omitempty"`
}
