package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

// PollPayment answers the storefront's "has my payment landed yet" question.
// A paid receipt short-circuits everything; otherwise the provider is asked,
// subject to the poll attempt cap.
func (s *PaymentService) PollPayment(ctx context.Context, reference string) (*types.PaymentStatusResponse, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidRequest
	}

	receipt, err := s.receiptRepo.FindPaidByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		return paidStatusResponse(reference, receipt.OrderID), nil
	}

	txn, err := s.txnRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		pending, err := s.pendingRepo.FindByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if pending == nil {
			return nil, ErrCheckoutNotFound
		}
		return &types.PaymentStatusResponse{Reference: reference, Status: "pending"}, nil
	}

	attempts, err := s.txnRepo.IncrementPollAttempts(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrCheckoutNotFound) {
			return nil, ErrCheckoutNotFound
		}
		return nil, err
	}

	maxAttempts := s.paymentsCfg.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultPollAttempts
	}
	if attempts > maxAttempts {
		return &types.PaymentStatusResponse{
			Reference: reference,
			Status:    "timeout",
			Final:     true,
			Message:   "payment was not confirmed in time",
		}, nil
	}

	gateway, err := s.providerReg.Get(txn.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	result := gateway.CheckStatus(ctx, &provider.StatusQuery{
		Reference:         reference,
		ProviderReference: stringValue(txn.ProviderReference),
		PollURL:           stringValue(txn.PollURL),
	})
	if !result.Success {
		return &types.PaymentStatusResponse{Reference: reference, Status: "unknown", Message: result.Message}, nil
	}

	if result.Paid {
		if result.Reference == "" {
			result.Reference = reference
		}
		return s.settleConfirmedStatus(ctx, gateway.Identifier(), result)
	}

	txn.ProviderStatus = result.Status
	txn.UpdatedAt = time.Now().UTC()
	if err := s.txnRepo.Upsert(ctx, txn); err != nil {
		s.logger.WithError(err).WithField("reference", reference).Warn("Failed to record provider status")
	}

	return &types.PaymentStatusResponse{
		Reference: reference,
		Status:    result.Status,
		Final:     terminalProviderStatus(result.Status),
		Message:   result.Message,
	}, nil
}

// HandleRedirectCallback serves the customer's browser returning from a
// provider-hosted page. The redirect is a hint, never the authority: the
// provider adapter re-verifies before anything is recorded.
func (s *PaymentService) HandleRedirectCallback(ctx context.Context, providerID string, params url.Values) (*types.PaymentStatusResponse, error) {
	gateway, err := s.providerReg.Get(providerID)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	result := gateway.HandleCallback(ctx, &provider.CallbackInput{Params: params, Headers: http.Header{}})

	reference := strings.TrimSpace(result.Reference)
	if reference == "" {
		reference = strings.TrimSpace(params.Get("reference"))
	}

	if !result.Success {
		return &types.PaymentStatusResponse{Reference: reference, Status: "unknown", Message: result.Message}, nil
	}

	if result.Paid {
		result.Reference = reference
		return s.settleConfirmedStatus(ctx, gateway.Identifier(), result)
	}

	return &types.PaymentStatusResponse{
		Reference: reference,
		Status:    result.Status,
		Final:     terminalProviderStatus(result.Status),
	}, nil
}

// HandleWebhook processes a server-to-server notification. A delivery that
// fails verification is rejected so the provider sees an error; once past
// verification the delivery is always acknowledged, because providers retry
// acknowledged-but-unprocessed events through the reconcile job anyway.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerID string, params url.Values, body []byte, headers http.Header) error {
	gateway, err := s.providerReg.Get(providerID)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return ErrProviderUnsupported
		}
		return err
	}

	result := gateway.HandleCallback(ctx, &provider.CallbackInput{Params: params, Body: body, Headers: headers})
	if !result.Success {
		return fmt.Errorf("%w: %s", ErrCallbackRejected, result.Message)
	}
	if !result.Paid {
		return nil
	}

	verified, err := newVerifiedPayment(gateway.Identifier(), result)
	if err != nil {
		return nil
	}

	if _, err := s.ProcessSuccessfulPayment(ctx, verified); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"provider":  gateway.Identifier(),
			"reference": verified.reference,
		}).Error("Webhook processing failed after verification")
	}
	return nil
}

func (s *PaymentService) settleConfirmedStatus(ctx context.Context, providerID string, result *provider.StatusResult) (*types.PaymentStatusResponse, error) {
	verified, err := newVerifiedPayment(providerID, result)
	if err != nil {
		return nil, err
	}

	order, err := s.ProcessSuccessfulPayment(ctx, verified)
	if err != nil {
		return nil, err
	}
	if order == nil {
		// Another delivery holds the claim; report pending and let the
		// customer's next poll find the receipt.
		return &types.PaymentStatusResponse{Reference: verified.reference, Status: "pending"}, nil
	}

	return paidStatusResponse(verified.reference, order.ID), nil
}

func paidStatusResponse(reference string, orderID uint64) *types.PaymentStatusResponse {
	return &types.PaymentStatusResponse{
		Reference: reference,
		Status:    "paid",
		Paid:      true,
		Final:     true,
		OrderID:   orderID,
	}
}

func terminalProviderStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "failed", "expired", "refunded", "disputed":
		return true
	default:
		return false
	}
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
