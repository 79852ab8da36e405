// Command worker runs the compute and webhook delivery task processors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/claimcore/core/internal/breaker"
	"github.com/claimcore/core/internal/compute"
	"github.com/claimcore/core/internal/compute/reference"
	"github.com/claimcore/core/internal/delivery"
	"github.com/claimcore/core/internal/deliveryclient"
	"github.com/claimcore/core/internal/dlq"
	"github.com/claimcore/core/internal/health"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/nats"
	"github.com/claimcore/core/internal/observability"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/retrypolicy"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/urlvalidate"
	"github.com/claimcore/core/internal/webhook"
)

// BreakerConfig is the env-tagged surface over breaker.Config, which
// itself carries no env tags since it is also constructed directly from
// breaker.DefaultConfig in tests.
type BreakerConfig struct {
	FailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	ResetTimeout     time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`
}

// DeliveryClientConfig is the env-tagged surface over deliveryclient.Config.
type DeliveryClientConfig struct {
	Timeout    time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
	HMACSecret string        `env:"DELIVERY_HMAC_SECRET" envDefault:""`
}

// URLValidateConfig is the env-tagged surface over urlvalidate.Config.
type URLValidateConfig struct {
	AllowPrivateDestinations bool   `env:"URL_ALLOW_PRIVATE_DESTINATIONS" envDefault:"false"`
	Allowlist                string `env:"URL_ALLOWLIST_PATTERN" envDefault:""`
}

// Config holds all worker configuration.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9092"`

	NATS  nats.Config     `envPrefix:""`
	KV    status.KVConfig `envPrefix:""`
	Queue queue.Config    `envPrefix:""`
	DLQ   dlq.Config      `envPrefix:""`

	Compute   compute.Config       `envPrefix:""`
	Breaker   BreakerConfig        `envPrefix:""`
	Delivery  DeliveryClientConfig `envPrefix:""`
	URL       URLValidateConfig    `envPrefix:""`
	Reference reference.Config     `envPrefix:""`
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	if cfg.Compute.Retry == (retrypolicy.Params{}) {
		cfg.Compute.Retry = retrypolicy.DefaultComputeParams
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting worker",
		"log_level", cfg.LogLevel,
		"nats_url", cfg.NATS.URL,
		"metrics_addr", cfg.MetricsAddr,
		"reference_compute_enabled", cfg.Reference.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := observability.New("claimcore-worker")
	if err != nil {
		return err
	}
	defer func() {
		if shutErr := obs.Shutdown(context.Background()); shutErr != nil {
			logger.Error("observability shutdown error", "error", shutErr)
		}
	}()

	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		return err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", obs.MetricsHandler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if srvErr := metricsServer.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			logger.Error("metrics server error", "error", srvErr)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	natsClient, err := nats.NewClient(ctx, cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	kv, err := status.NewKVStore(ctx, natsClient.JetStream(), cfg.KV)
	if err != nil {
		return err
	}
	manager := lifecycle.New(kv, logger)

	queueModule, err := queue.New(ctx, natsClient.JetStream(), cfg.Queue, logger)
	if err != nil {
		return err
	}

	breakers := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	})

	deliveryClient := deliveryclient.New(deliveryclient.Config{
		Timeout:    cfg.Delivery.Timeout,
		HMACSecret: cfg.Delivery.HMACSecret,
	})

	var allowlist *regexp.Regexp
	if cfg.URL.Allowlist != "" {
		allowlist, err = regexp.Compile(cfg.URL.Allowlist)
		if err != nil {
			return fmt.Errorf("compile url allowlist pattern: %w", err)
		}
	}
	urlCfg := urlvalidate.Config{
		AllowPrivateDestinations: cfg.URL.AllowPrivateDestinations,
		Allowlist:                allowlist,
	}

	deliveryMetrics := observability.NewDeliveryMetrics(metrics)
	deliveryOrch := delivery.New(manager, breakers, deliveryClient, urlCfg, deliveryMetrics, logger)

	computeOrch := compute.New(computeFunc(cfg.Reference), manager, queueModule.WebhookPublisher, cfg.Compute, logger)

	computePool, err := queueModule.ComputePool(ctx, computeOrch.Handle)
	if err != nil {
		return err
	}
	webhookPool, err := queueModule.WebhookPool(ctx, deliveryOrch.Handle)
	if err != nil {
		return err
	}
	computePool.Start(ctx)
	webhookPool.Start(ctx)

	computeStream, webhookStream := queueModule.StreamNames()
	dlqModule := dlq.New(
		natsClient.JetStream(), natsClient.Conn(), manager,
		computeStream, queue.ComputeConsumerName,
		webhookStream, queue.WebhookConsumerName,
		cfg.DLQ, logger,
	)
	if err := dlqModule.Start(ctx); err != nil {
		return err
	}

	// Health is served by cmd/server's /health endpoint against the same
	// status store; the worker still builds a Checker so its own /ready
	// endpoint reflects both pools and the breaker registry it owns. The
	// /health route on the same mux is a bare liveness probe that always
	// answers ok.
	healthChecker := health.New(manager, []health.NamedPool{
		{Name: "compute-workers", Pool: computePool},
		{Name: "webhook-workers", Pool: webhookPool},
	}, breakers)
	metricsMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		report := healthChecker.Check(r.Context())
		if report.Status == health.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(report.Status))
	})

	logger.Info("worker started")

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	computePool.Stop()
	webhookPool.Stop()
	dlqModule.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	if err := natsClient.Drain(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}

	logger.Info("worker stopped")
	return nil
}

// errComputeNotConfigured is returned by the placeholder compute
// function when no real compute engine is wired in and the reference
// stub has not been explicitly enabled.
var errComputeNotConfigured = errors.New("no compute engine configured: set REFERENCE_COMPUTE_ENABLED=true for local/dev runs")

// computeFunc selects the compute implementation: the reference stub
// when explicitly enabled for local/dev runs, otherwise a function that
// always reports a transient failure so a missing production engine
// retries loudly instead of silently dropping claims.
func computeFunc(cfg reference.Config) compute.Func {
	if cfg.Enabled {
		return reference.Compute
	}
	return func(context.Context, webhook.ClaimRequest) (json.RawMessage, error) {
		return nil, compute.Transient(errComputeNotConfigured)
	}
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
