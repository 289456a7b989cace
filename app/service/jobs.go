package service

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/orders"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

// RunSyncDispatchBatch pushes queued receipts to the commerce platform.
// Failures back off and retry until the attempt cap; the receipt itself is
// already durable either way.
func (s *PaymentService) RunSyncDispatchBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.receiptRepo.ListDueSyncDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, receipt := range items {
		if receipt == nil {
			continue
		}
		if err := s.dispatchSync(ctx, receipt, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunReconcileBatch sweeps provider transactions that never produced a
// receipt and asks the provider directly. This is the safety net for lost
// webhooks, abandoned redirects, and crashes between claim and receipt.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.txnRepo.ListStaleUnreceipted(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, txn := range items {
		if txn == nil {
			continue
		}

		gateway, err := s.providerReg.Get(txn.Provider)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		result := gateway.CheckStatus(ctx, &provider.StatusQuery{
			Reference:         txn.Reference,
			ProviderReference: stringValue(txn.ProviderReference),
			PollURL:           stringValue(txn.PollURL),
		})
		if !result.Success {
			firstErr = keepFirstErr(firstErr, errors.New(result.Message))
			continue
		}

		if result.Paid {
			if result.Reference == "" {
				result.Reference = txn.Reference
			}
			verified, err := newVerifiedPayment(gateway.Identifier(), result)
			if err != nil {
				firstErr = keepFirstErr(firstErr, err)
				continue
			}
			if _, err := s.ProcessSuccessfulPayment(ctx, verified); err != nil {
				firstErr = keepFirstErr(firstErr, err)
			}
			continue
		}

		txn.ProviderStatus = result.Status
		txn.UpdatedAt = now
		if err := s.txnRepo.Upsert(ctx, txn); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunPurgePendingBatch deletes never-paid pending checkouts well past their
// expiry. Claimed and paid rows are never purged.
func (s *PaymentService) RunPurgePendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingPurgeGrace)

	deleted, err := s.pendingRepo.DeleteExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("Purged abandoned pending checkouts")
	}
	return nil
}

func (s *PaymentService) dispatchSync(ctx context.Context, receipt *entity.PaymentReceipt, now time.Time) error {
	sync := &orders.PaymentSync{
		OrderID:           receipt.OrderID,
		AmountPaid:        receipt.Amount,
		Provider:          receipt.Provider,
		ProviderReference: receipt.ProviderReference,
	}

	if err := s.orders.SyncPayment(ctx, sync); err != nil {
		return s.recordSyncFailure(ctx, receipt, now, err)
	}

	receipt.SyncStatus = entity.SyncDeliverySuccess
	receipt.SyncNextAt = nil
	receipt.SyncLastErr = nil
	receipt.UpdatedAt = now

	return s.receiptRepo.Update(ctx, receipt)
}

func (s *PaymentService) recordSyncFailure(ctx context.Context, receipt *entity.PaymentReceipt, now time.Time, dispatchErr error) error {
	receipt.SyncAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	receipt.SyncLastErr = &trimmed

	maxAttempts := s.paymentsCfg.SyncMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if receipt.SyncAttempts >= maxAttempts {
		receipt.SyncStatus = entity.SyncDeliveryFailed
		receipt.SyncNextAt = nil
	} else {
		retryInterval := s.paymentsCfg.SyncRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		receipt.SyncStatus = entity.SyncDeliveryPending
		receipt.SyncNextAt = &next
	}
	receipt.UpdatedAt = now

	if err := s.receiptRepo.Update(ctx, receipt); err != nil {
		return err
	}

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
