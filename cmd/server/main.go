package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltpay/volt-payment-gateway/internal/audit"
	"github.com/voltpay/volt-payment-gateway/internal/breaker"
	"github.com/voltpay/volt-payment-gateway/internal/cache"
	"github.com/voltpay/volt-payment-gateway/internal/config"
	"github.com/voltpay/volt-payment-gateway/internal/dispatcher"
	"github.com/voltpay/volt-payment-gateway/internal/handler"
	"github.com/voltpay/volt-payment-gateway/internal/health"
	"github.com/voltpay/volt-payment-gateway/internal/ledger"
	"github.com/voltpay/volt-payment-gateway/internal/metrics"
	"github.com/voltpay/volt-payment-gateway/internal/model"
	"github.com/voltpay/volt-payment-gateway/internal/processor"
	"github.com/voltpay/volt-payment-gateway/internal/retry"
	"github.com/voltpay/volt-payment-gateway/internal/summary"
)

const version = "1.0.0"

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load()
	logger := newLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	c := cache.New(cfg.RedisURL, logger)
	defer c.Close()

	requestMetrics := metrics.NewRecorder(config.MetricsWindowSize, config.ThroughputWindow, cfg.P99Threshold, logger)
	defaultCalls := metrics.NewRecorder(config.MetricsWindowSize, config.ThroughputWindow, 0, logger)
	fallbackCalls := metrics.NewRecorder(config.MetricsWindowSize, config.ThroughputWindow, 0, logger)

	defaultProc := processor.NewClient(processor.ClientConfig{
		Name:           model.ProcessorDefault,
		BaseURL:        cfg.DefaultProcessorURL,
		PaymentTimeout: config.PaymentTimeout,
		HealthTimeout:  config.HealthTimeout,
	}, defaultCalls)
	fallbackProc := processor.NewClient(processor.ClientConfig{
		Name:           model.ProcessorFallback,
		BaseURL:        cfg.FallbackProcessorURL,
		PaymentTimeout: config.PaymentTimeout,
		HealthTimeout:  config.HealthTimeout,
	}, fallbackCalls)

	defaultBreaker := breaker.New(string(model.ProcessorDefault), config.FailureThreshold, config.ResetTimeout, config.RingCapacity, logger)
	fallbackBreaker := breaker.New(string(model.ProcessorFallback), config.FailureThreshold, config.ResetTimeout, config.RingCapacity, logger)

	poller := health.NewPoller([]processor.Processor{defaultProc, fallbackProc}, c, logger)
	poller.Start()
	defer poller.Stop()

	auditLog := audit.NewLog(config.AuditCapacity)

	disp := dispatcher.New(dispatcher.Params{
		Default:  dispatcher.Route{Processor: defaultProc, Breaker: defaultBreaker},
		Fallback: dispatcher.Route{Processor: fallbackProc, Breaker: fallbackBreaker},
		Retry: retry.Policy{
			MaxRetries: config.MaxRetries,
			BaseDelay:  config.RetryBaseDelay,
			MaxDelay:   config.RetryMaxDelay,
			Multiplier: config.RetryMultiplier,
			Jitter:     config.RetryJitter,
		},
		Ledger:           store,
		Invalidator:      c,
		Dupes:            c,
		Metrics:          requestMetrics,
		Audit:            auditLog,
		SimulatePayments: cfg.SimulatePayments,
		Logger:           logger,
	})

	aggregator := summary.New(store, c, cfg.CacheTTL, logger)

	mux := http.NewServeMux()
	h := handler.New(handler.Params{
		Dispatcher:      disp,
		Aggregator:      aggregator,
		Payments:        store,
		Cache:           c,
		Poller:          poller,
		DefaultBreaker:  defaultBreaker,
		FallbackBreaker: fallbackBreaker,
		Metrics:         requestMetrics,
		DefaultCalls:    defaultCalls,
		FallbackCalls:   fallbackCalls,
		Audit:           auditLog,
		Pool:            store,
		Version:         version,
		Logger:          logger,
	})
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "port", cfg.Port, "simulate_payments", cfg.SimulatePayments)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("server_stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if env == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
