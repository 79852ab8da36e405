// Command server runs the ingress HTTP API for claim submission and
// webhook/task status lookup.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"
	_ "github.com/lib/pq"

	"github.com/claimcore/core/internal/auth"
	"github.com/claimcore/core/internal/breaker"
	"github.com/claimcore/core/internal/compute"
	"github.com/claimcore/core/internal/compute/reference"
	"github.com/claimcore/core/internal/health"
	"github.com/claimcore/core/internal/httpapi"
	"github.com/claimcore/core/internal/idempotency"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/nats"
	"github.com/claimcore/core/internal/observability"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/ratelimit"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// Config holds all server configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	HTTP  httpapi.Config  `envPrefix:""`
	NATS  nats.Config     `envPrefix:""`
	KV    status.KVConfig `envPrefix:""`
	Queue queue.Config    `envPrefix:""`

	Database    DatabaseConfig     `envPrefix:"DATABASE_"`
	Reference   reference.Config   `envPrefix:""`
	Idempotency idempotency.Config `envPrefix:""`
}

// DatabaseConfig holds PostgreSQL connection configuration backing the
// API key auth module.
type DatabaseConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"claimcore"`
	Password string `env:"PASSWORD" envDefault:"claimcore"`
	Name     string `env:"NAME"     envDefault:"claimcore"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
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

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting ingress server",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTP.Addr,
		"nats_url", cfg.NATS.URL,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability module ---
	obs, err := observability.New("claimcore-server")
	if err != nil {
		return fmt.Errorf("failed to create observability module: %w", err)
	}

	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// --- Database connection (API key auth) ---
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	authModule := auth.New(db, logger)

	// --- NATS / Status Store / Task Queue ---
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

	// --- Rate limiting ---
	rateLimiter := ratelimit.New(cfg.HTTP.RateLimit, logger)
	defer rateLimiter.Stop()

	// --- Ingress idempotency ---
	idempotencyModule := idempotency.New(cfg.Idempotency, metrics, logger)
	idempotencyModule.Start(ctx)
	defer idempotencyModule.Stop()

	// --- Health ---
	// The ingress process has no worker pools of its own to poll, and
	// breaker state is process-local: the registry passed here is a fresh
	// one that nothing in this process trips, so this /health reflects the
	// store ping only. Worker pools and the worker's breakers are reported
	// by cmd/worker's /ready endpoint.
	healthChecker := health.New(manager, nil, breaker.New(breaker.DefaultConfig))

	// --- Ingress HTTP server ---
	server := httpapi.New(cfg.HTTP, httpapi.Deps{
		Auth:           authModule,
		RateLimit:      rateLimiter,
		Manager:        manager,
		ComputeQueue:   queueModule.ComputePublisher,
		ComputeFn:      computeFunc(cfg.Reference),
		Idempotency:    idempotencyModule,
		Health:         healthChecker,
		MetricsHandler: obs.MetricsHandler(),
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("ingress server started",
		"addr", cfg.HTTP.Addr,
		"auth", "enabled",
		"rate_limit_rps", cfg.HTTP.RateLimit.RequestsPerSecond,
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := obs.Shutdown(context.Background()); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}
	logger.Info("observability module stopped")

	if err := natsClient.Drain(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// errComputeNotConfigured is returned for synchronous claim submissions
// when no real compute engine is wired in and the reference stub has
// not been explicitly enabled, matching cmd/worker's own placeholder.
var errComputeNotConfigured = errors.New("no compute engine configured: set REFERENCE_COMPUTE_ENABLED=true for local/dev runs")

// computeFunc selects the synchronous compute implementation used by
// claim submissions with no webhook_url.
func computeFunc(cfg reference.Config) compute.Func {
	if cfg.Enabled {
		return reference.Compute
	}
	return func(context.Context, webhook.ClaimRequest) (json.RawMessage, error) {
		return nil, errComputeNotConfigured
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

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
