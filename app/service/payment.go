package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/orders"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

const (
	defaultBatchSize      = int32(100)
	defaultClaimRetryWait = 2 * time.Second
	defaultPollAttempts   = int32(60)
	fullPaymentPercentage = int32(100)
)

type pendingCheckoutRepository interface {
	Upsert(ctx context.Context, item *entity.PendingCheckout) error
	Claim(ctx context.Context, reference string) (bool, error)
	MarkAsPaid(ctx context.Context, reference string) error
	FindByReference(ctx context.Context, reference string) (*entity.PendingCheckout, error)
	DeleteExpiredPending(ctx context.Context, cutoff time.Time, limit int32) (int64, error)
}

type receiptRepository interface {
	Create(ctx context.Context, receipt *entity.PaymentReceipt) error
	Update(ctx context.Context, receipt *entity.PaymentReceipt) error
	FindPaidByReference(ctx context.Context, reference string) (*entity.PaymentReceipt, error)
	ListDueSyncDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentReceipt, error)
}

type providerTransactionRepository interface {
	Upsert(ctx context.Context, txn *entity.ProviderTransaction) error
	FindByReference(ctx context.Context, reference string) (*entity.ProviderTransaction, error)
	IncrementPollAttempts(ctx context.Context, reference string) (int32, error)
	ListStaleUnreceipted(ctx context.Context, before time.Time, limit int32) ([]*entity.ProviderTransaction, error)
}

type orderClient interface {
	CreateOrder(ctx context.Context, payload json.RawMessage) (*orders.Order, error)
	GetOrder(ctx context.Context, id uint64) (*orders.Order, error)
	FindOrderByPaymentReference(ctx context.Context, reference string) (*orders.Order, error)
	SyncPayment(ctx context.Context, sync *orders.PaymentSync) error
}

type PaymentService struct {
	pendingRepo pendingCheckoutRepository
	receiptRepo receiptRepository
	txnRepo     providerTransactionRepository
	orders      orderClient
	providerReg *provider.Registry
	paymentsCfg config.PaymentsConfig
	checkoutCfg config.CheckoutConfig
	logger      logrus.FieldLogger
}

func NewPaymentService(
	pendingRepo pendingCheckoutRepository,
	receiptRepo receiptRepository,
	txnRepo providerTransactionRepository,
	orderClient orderClient,
	providerReg *provider.Registry,
	paymentsCfg config.PaymentsConfig,
	checkoutCfg config.CheckoutConfig,
) *PaymentService {
	return &PaymentService{
		pendingRepo: pendingRepo,
		receiptRepo: receiptRepo,
		txnRepo:     txnRepo,
		orders:      orderClient,
		providerReg: providerReg,
		paymentsCfg: paymentsCfg,
		checkoutCfg: checkoutCfg,
		logger:      factory.NewModuleLogger("checkout-service"),
	}
}

// InitiateCheckout stages the checkout payload and starts the payment with
// the chosen provider. The pending record is written before the provider is
// contacted so a webhook that races the initiation response still finds it.
func (s *PaymentService) InitiateCheckout(ctx context.Context, req *types.InitiateCheckoutRequest) (*types.InitiateCheckoutResponse, error) {
	gateway, err := s.providerReg.Get(req.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.paymentsCfg.DefaultCurrency
	}

	now := time.Now().UTC()
	if gateway.Identifier() != provider.Cash {
		ttl := s.paymentsCfg.PendingCheckoutTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		pending := &entity.PendingCheckout{
			Reference:         req.Reference,
			Provider:          gateway.Identifier(),
			Amount:            req.Amount,
			Currency:          currency,
			PaymentPercentage: req.PaymentPercentage,
			CheckoutPayload:   req.CheckoutPayload,
			Status:            entity.PendingCheckoutStatusPending,
			ExpiresAt:         now.Add(ttl),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.pendingRepo.Upsert(ctx, pending); err != nil {
			return nil, err
		}
	}

	result := gateway.Initiate(ctx, &provider.InitiateInput{
		Reference:   req.Reference,
		Amount:      req.Amount,
		Currency:    currency,
		Email:       req.Email,
		Phone:       req.Phone,
		Description: req.Description,
		ReturnURL:   s.callbackURL(gateway.Identifier(), req.Reference),
		ResultURL:   s.webhookURL(gateway.Identifier()),
		Metadata:    req.Metadata,
	})
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrProviderDeclined, result.Message)
	}

	if gateway.Identifier() != provider.Cash {
		txn := &entity.ProviderTransaction{
			Reference:      req.Reference,
			Provider:       gateway.Identifier(),
			ProviderStatus: "initiated",
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if v := strings.TrimSpace(result.ProviderReference); v != "" {
			txn.ProviderReference = &v
		}
		if v := strings.TrimSpace(result.PollURL); v != "" {
			txn.PollURL = &v
		}
		if err := s.txnRepo.Upsert(ctx, txn); err != nil {
			return nil, err
		}
	}

	return &types.InitiateCheckoutResponse{
		Success:      true,
		Reference:    req.Reference,
		Provider:     gateway.Identifier(),
		RedirectURL:  result.RedirectURL,
		Instructions: result.Instructions,
		PollPath:     "/payments/" + url.PathEscape(req.Reference) + "/status",
	}, nil
}

// ConfirmCashPayment records a courier-collected cash payment. Cash has no
// provider-side confirmation, so the internal caller is the trust boundary.
func (s *PaymentService) ConfirmCashPayment(ctx context.Context, req *types.ConfirmCashPaymentRequest) (*orders.Order, error) {
	gateway, err := s.providerReg.Get(provider.Cash)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("reference", req.Reference)
	params.Set("receipt_number", req.ReceiptNumber)

	result := gateway.HandleCallback(ctx, &provider.CallbackInput{Params: params})
	if !result.Success || !result.Paid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, result.Message)
	}

	verified, err := newVerifiedPayment(gateway.Identifier(), result)
	if err != nil {
		return nil, err
	}

	order, err := s.ProcessSuccessfulPayment(ctx, verified)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrCheckoutNotFound
	}
	return order, nil
}

// ProcessSuccessfulPayment is the single funnel every confirmed payment
// passes through, whatever delivery channel reported it. It resolves the
// order (claiming the staged checkout or falling back to an existing order),
// writes the paid receipt exactly once, and queues the downstream sync.
//
// A nil order with a nil error means the delivery was absorbed without
// producing a receipt: either another delivery is mid-flight for the same
// reference, or the reference resolves to nothing this service knows about.
func (s *PaymentService) ProcessSuccessfulPayment(ctx context.Context, verified *VerifiedPayment) (*orders.Order, error) {
	reference := verified.reference
	if reference == "" {
		s.logger.WithField("provider", verified.provider).Warn("Confirmed payment carries no reference; ignoring")
		return nil, nil
	}

	log := s.logger.WithFields(logrus.Fields{"reference": reference, "provider": verified.provider})

	existing, err := s.receiptRepo.FindPaidByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.orderForReceipt(ctx, existing), nil
	}

	pending, err := s.pendingRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	var order *orders.Order
	percentage := fullPaymentPercentage

	if pending != nil {
		claimed, err := s.pendingRepo.Claim(ctx, reference)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return s.awaitConcurrentReceipt(ctx, reference)
		}

		if pending.PaymentPercentage > 0 {
			percentage = pending.PaymentPercentage
		}

		// The row stays claimed on failure. Creating the order may have
		// succeeded on the platform even when this call errors, so handing
		// the claim back to a later delivery could create a second order for
		// the same reference. A stranded claim is an operator follow-up.
		order, err = s.orders.CreateOrder(ctx, pending.CheckoutPayload)
		if err != nil {
			log.WithError(err).Error("Order creation failed; reference remains claimed")
			return nil, err
		}
		if err := s.pendingRepo.MarkAsPaid(ctx, reference); err != nil {
			log.WithError(err).Warn("Failed to mark pending checkout as paid")
		}
	} else {
		order, err = s.orders.FindOrderByPaymentReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if order == nil {
			log.Warn("Confirmed payment does not match any checkout or order; ignoring")
			return nil, nil
		}
		if order.PaymentPercentage > 0 {
			percentage = order.PaymentPercentage
		}
	}

	// The amount owed comes from the order total, never from what the
	// provider reported.
	amount := order.Total.Mul(decimal.New(int64(percentage), -2))

	currency := verified.currency
	if currency == "" {
		currency = s.paymentsCfg.DefaultCurrency
	}

	now := time.Now().UTC()
	s.recordProviderStatus(ctx, verified, now)

	metadata := map[string]string{}
	if verified.status != "" {
		metadata["provider_status"] = verified.status
	}
	if verified.reportedAmount.IsPositive() {
		metadata["provider_amount"] = verified.reportedAmount.String()
	}

	receipt := &entity.PaymentReceipt{
		OrderID:           order.ID,
		Provider:          verified.provider,
		Reference:         reference,
		ProviderReference: verified.providerReference,
		Amount:            amount,
		Currency:          currency,
		Metadata:          metadata,
		Status:            entity.ReceiptStatusPaid,
		PaidAt:            now,
		SyncStatus:        entity.SyncDeliveryPending,
		SyncNextAt:        &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.receiptRepo.Create(ctx, receipt); err != nil {
		if errors.Is(err, repository.ErrReceiptAlreadyExists) {
			log.Info("Receipt already written by a concurrent delivery")
			return order, nil
		}
		return nil, err
	}

	log.WithField("order_id", order.ID).Info("Payment receipt recorded")
	return order, nil
}

// awaitConcurrentReceipt handles a lost claim: another delivery is creating
// the order right now. Wait once, briefly, then check whether its receipt
// landed. If it did not, this delivery is absorbed and the reconcile job
// picks the reference up later.
func (s *PaymentService) awaitConcurrentReceipt(ctx context.Context, reference string) (*orders.Order, error) {
	wait := s.paymentsCfg.ClaimRetryWait
	if wait <= 0 {
		wait = defaultClaimRetryWait
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}

	receipt, err := s.receiptRepo.FindPaidByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		s.logger.WithField("reference", reference).Info("Concurrent delivery still in flight; absorbing duplicate")
		return nil, nil
	}
	return s.orderForReceipt(ctx, receipt), nil
}

func (s *PaymentService) orderForReceipt(ctx context.Context, receipt *entity.PaymentReceipt) *orders.Order {
	order, err := s.orders.GetOrder(ctx, receipt.OrderID)
	if err != nil || order == nil {
		return &orders.Order{ID: receipt.OrderID}
	}
	return order
}

func (s *PaymentService) recordProviderStatus(ctx context.Context, verified *VerifiedPayment, now time.Time) {
	switch verified.provider {
	case provider.MobilePush, provider.WebRedirect, provider.PayPal, provider.Stripe:
	default:
		return
	}

	txn := &entity.ProviderTransaction{
		Reference:      verified.reference,
		Provider:       verified.provider,
		ProviderStatus: verified.status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if verified.providerReference != "" {
		ref := verified.providerReference
		txn.ProviderReference = &ref
	}
	if err := s.txnRepo.Upsert(ctx, txn); err != nil {
		s.logger.WithError(err).WithField("reference", verified.reference).Warn("Failed to record provider status")
	}
}

func (s *PaymentService) callbackURL(providerID, reference string) string {
	base := strings.TrimRight(strings.TrimSpace(s.checkoutCfg.PublicBaseURL), "/")
	return base + "/payments/callback/" + url.PathEscape(providerID) + "?reference=" + url.QueryEscape(reference)
}

func (s *PaymentService) webhookURL(providerID string) string {
	base := strings.TrimRight(strings.TrimSpace(s.checkoutCfg.PublicBaseURL), "/")
	return base + "/webhooks/providers/" + url.PathEscape(providerID)
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}
