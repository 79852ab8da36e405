// Package idempotency suppresses duplicate claim submissions using a
// sliding-window bloom filter, so a retried or double-clicked submission
// of the same reference_id within the window is rejected instead of
// queued twice.
package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/claimcore/core/internal/observability"
)

// Config holds the idempotency module configuration.
//
// Environment variable overrides:
//   - IDEMPOTENCY_WINDOW:   sliding window duration (default: 10m)
//   - IDEMPOTENCY_CAPACITY: expected submissions per window (default: 100000)
//   - IDEMPOTENCY_FP_RATE:  bloom filter false positive rate (default: 0.0001)
type Config struct {
	Window   time.Duration `env:"IDEMPOTENCY_WINDOW"   envDefault:"10m"`
	Capacity uint          `env:"IDEMPOTENCY_CAPACITY" envDefault:"100000"`
	FPRate   float64       `env:"IDEMPOTENCY_FP_RATE"  envDefault:"0.0001"`
}

// DefaultConfig returns the default idempotency configuration: a 10 minute
// sliding window, 100k submission capacity, and 0.01% false positive rate.
func DefaultConfig() Config {
	return Config{
		Window:   10 * time.Minute,
		Capacity: 100_000,
		FPRate:   0.0001,
	}
}

// Module is the idempotency facade wrapping the bloom filter service.
type Module struct {
	svc *service
}

// New creates a Module with the given configuration. metrics is optional
// (pass nil to disable instrumentation).
func New(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "idempotency")

	return &Module{
		svc: newService(cfg.Window, cfg.Capacity, cfg.FPRate, metrics, logger),
	}
}

// Start begins the background bloom filter rotation goroutine.
func (m *Module) Start(ctx context.Context) {
	m.svc.Start(ctx)
}

// Stop signals the rotation goroutine to stop and waits for completion.
func (m *Module) Stop() {
	m.svc.Stop()
}

// IsDuplicate reports whether referenceID has already been submitted
// within the configured window.
func (m *Module) IsDuplicate(referenceID string) bool {
	return m.svc.IsDuplicate(referenceID)
}
