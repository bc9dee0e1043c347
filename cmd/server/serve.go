package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"GiftSend/internal/api"
	"GiftSend/internal/config"
	"GiftSend/internal/db"
	"GiftSend/internal/email"
	"GiftSend/internal/giftogram"
	"GiftSend/internal/metrics"
	"GiftSend/internal/orders"
	"GiftSend/internal/recipients"
	"GiftSend/internal/worker"
)

func runServe(cmd *cobra.Command, args []string) error {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database (retried until it answers)
	// ------------------------------------------------
	store, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer store.Close()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
			cancel()
		}
	}()

	// ------------------------------------------------
	// Gift Card Provider
	// ------------------------------------------------
	provider := giftogram.NewClient(giftogram.Config{
		BaseURL:     cfg.ProviderURL,
		APIKey:      cfg.ProviderAPIKey,
		Environment: cfg.ProviderEnvironment,
		CampaignID:  cfg.ProviderCampaignID,
		Timeout:     cfg.ProviderTimeout,
	}, logger)

	if cfg.ProviderAPIKey == "" {
		logger.Warn("GIFTOGRAM_API_KEY is not set, provider calls will be rejected")
	}

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	// ------------------------------------------------
	// Worker Pool (shared by every bulk send)
	// ------------------------------------------------
	pool := worker.NewPool(cfg.WorkerCount, limiter, logger)

	// ------------------------------------------------
	// Notifications
	// ------------------------------------------------
	var notifier orders.Notifier
	if cfg.NotificationsEnabled() {
		sender := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
		notifier = email.NewNotifier(sender, cfg.NotifyTo, cfg.RetryAttempts, logger)
		logger.Info("bulk summary notifications enabled", zap.String("to", cfg.NotifyTo))
	}

	// ------------------------------------------------
	// Services
	// ------------------------------------------------
	orchestrator := orders.NewOrchestrator(provider, pool, logger)
	ordersSvc := orders.NewService(provider, orchestrator, store, store, notifier, logger)
	recipientsSvc := recipients.NewService(store, cfg.UploadDir, logger)

	// ------------------------------------------------
	// Reconciler
	// ------------------------------------------------
	var wg sync.WaitGroup

	if cfg.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ordersSvc.RunReconciler(ctx, cfg.ReconcileInterval, cfg.ReconcileBatch)
		}()
	}

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiServer := api.NewServer(recipientsSvc, ordersSvc, provider, api.Options{
		ListenAddr:     ":" + cfg.APIPort,
		MaxUploadSize:  cfg.MaxUploadSize,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", zap.Error(err))
			cancel()
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	// Stop bulk sends and let them save what they completed before the
	// store is closed
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer drainCancel()

	if err := ordersSvc.Shutdown(drainCtx); err != nil {
		logger.Error("bulk sends did not finish saving", zap.Error(err))
	}

	// Wait for the reconciler to finish its current sweep
	wg.Wait()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
	return nil
}

// openStore opens the configured store with exponential backoff so the
// service can start before its database is ready.
func openStore(ctx context.Context, url string, logger *zap.Logger) (db.Store, error) {
	var store db.Store

	operation := func() error {
		s, err := db.Open(ctx, url)
		if err != nil {
			logger.Warn("database not ready", zap.Error(err))
			return err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			logger.Warn("database not ready", zap.Error(err))
			return err
		}
		store = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return store, nil
}
