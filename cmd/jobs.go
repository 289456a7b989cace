package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-poll stale provider transactions that never produced a receipt",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run receipt sync related commands",
}

var syncDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch queued payment receipts to the commerce platform",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"sync_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.SyncDispatchInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunSyncDispatchBatch(ctx)
			},
		)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run purge-related commands",
}

var purgePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Delete never-paid pending checkouts past their expiry grace period",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"purge_pending",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PurgePendingInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunPurgePendingBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(purgeCmd)
	syncCmd.AddCommand(syncDispatchCmd)
	purgeCmd.AddCommand(purgePendingCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), paymentService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(paymentService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	paymentService *service.PaymentService,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(paymentService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(paymentService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
