package controller

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

type PaymentController struct {
	paymentService *service.PaymentService
	checkoutCfg    config.CheckoutConfig
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService, checkoutCfg config.CheckoutConfig) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		checkoutCfg:    checkoutCfg,
		logger:         factory.NewModuleLogger("checkout-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) InitiateCheckout(ctx echo.Context) error {
	req, err := types.NewInitiateCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	resp, err := c.paymentService.InitiateCheckout(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrProviderDeclined):
			return c.writeError(ctx, http.StatusBadGateway, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Initiate checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, resp)
}

func (c *PaymentController) ConfirmCashPayment(ctx echo.Context) error {
	req, err := types.NewConfirmCashPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	order, err := c.paymentService.ConfirmCashPayment(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrCheckoutNotFound):
			return c.writeError(ctx, http.StatusNotFound, "checkout not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Confirm cash payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.PaymentStatusResponse{
		Reference: req.Reference,
		Status:    "paid",
		Paid:      true,
		Final:     true,
		OrderID:   order.ID,
	})
}

func (c *PaymentController) PollPayment(ctx echo.Context) error {
	reference := strings.TrimSpace(ctx.Param("reference"))

	resp, err := c.paymentService.PollPayment(ctx.Request().Context(), reference)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrCheckoutNotFound):
			return c.writeError(ctx, http.StatusNotFound, "checkout not found")
		case errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Poll payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, resp)
}

// HandleRedirectCallback serves the customer's browser coming back from a
// provider page and always ends in a redirect to the storefront, whatever
// happened to the payment.
func (c *PaymentController) HandleRedirectCallback(ctx echo.Context) error {
	providerID := strings.TrimSpace(ctx.Param("provider"))
	params := ctx.QueryParams()

	resp, err := c.paymentService.HandleRedirectCallback(ctx.Request().Context(), providerID, params)
	if err != nil {
		if !errors.Is(err, service.ErrProviderUnsupported) {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Redirect callback failed")
		}
		return ctx.Redirect(http.StatusFound, c.redirectTarget(c.checkoutCfg.FailureRedirectURL, params.Get("reference")))
	}

	target := c.checkoutCfg.FailureRedirectURL
	if resp.Paid {
		target = c.checkoutCfg.SuccessRedirectURL
	}
	return ctx.Redirect(http.StatusFound, c.redirectTarget(target, resp.Reference))
}

// HandleWebhook acknowledges every delivery that passes provider
// verification. Rejections get an error status so the provider retries with
// a fresh signature.
func (c *PaymentController) HandleWebhook(ctx echo.Context) error {
	providerID := strings.TrimSpace(ctx.Param("provider"))

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "unreadable request body")
	}

	params := ctx.QueryParams()
	headers := ctx.Request().Header

	if err := c.paymentService.HandleWebhook(ctx.Request().Context(), providerID, params, body, headers); err != nil {
		switch {
		case errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrCallbackRejected):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Webhook handling failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Success: true, Message: "ok"})
}

func (c *PaymentController) redirectTarget(base, reference string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "/"
	}
	if reference == "" {
		return base
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + "reference=" + url.QueryEscape(reference)
}

func (c *PaymentController) writeError(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, &types.ErrorResponse{Success: false, Error: message})
}
