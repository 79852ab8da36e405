// Command archiver runs the scheduled sweep that moves terminal webhook
// records out of the hot status store into Parquet files in cold
// storage for compliance retention.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/claimcore/core/internal/archive"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/nats"
	"github.com/claimcore/core/internal/observability"
	"github.com/claimcore/core/internal/status"
)

// Config holds all archiver configuration.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9093"`

	NATS nats.Config     `envPrefix:""`
	KV   status.KVConfig `envPrefix:""`

	Archive archive.Config `envPrefix:""`
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

	logger.Info("starting archiver",
		"log_level", cfg.LogLevel,
		"nats_url", cfg.NATS.URL,
		"schedule", cfg.Archive.Schedule,
		"enabled", cfg.Archive.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := observability.New("claimcore-archiver")
	if err != nil {
		return fmt.Errorf("failed to create observability module: %w", err)
	}
	defer func() {
		if shutErr := obs.Shutdown(context.Background()); shutErr != nil {
			logger.Error("observability shutdown error", "error", shutErr)
		}
	}()

	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", obs.MetricsHandler())
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

	s3Client, err := archive.NewS3Client(ctx, cfg.Archive.S3, logger)
	if err != nil {
		return fmt.Errorf("create archive s3 client: %w", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure archive bucket: %w", err)
	}

	archiveModule := archive.New(manager, s3Client, cfg.Archive, metrics, logger)
	if err := archiveModule.Start(ctx); err != nil {
		return fmt.Errorf("start archive module: %w", err)
	}

	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !archiveModule.Archiver().Healthy(2 * cfg.Archive.Schedule) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("archiver started")

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	archiveModule.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	if err := natsClient.Drain(); err != nil {
		logger.Error("NATS drain error", "error", err)
	}

	logger.Info("archiver stopped")
	return nil
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
