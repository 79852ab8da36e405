package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claimcore/core/internal/webhook"
)

// CleanupConfig tunes the periodic cleanup schedule.
type CleanupConfig struct {
	Interval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	MaxAge   time.Duration `env:"CLEANUP_MAX_AGE" envDefault:"168h"`
}

// Scheduler runs Manager.Cleanup on a configurable interval.
type Scheduler struct {
	manager *Manager
	cfg     CleanupConfig
	logger  *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewScheduler creates a new cleanup scheduler.
func NewScheduler(manager *Manager, cfg CleanupConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		manager: manager,
		cfg:     cfg,
		logger:  logger.With("component", "lifecycle-cleanup-scheduler"),
	}
}

// Start begins the scheduled cleanup loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler already running")
		return
	}

	s.stopCh = make(chan struct{})
	s.running = true

	go s.run(ctx)

	s.logger.Info("cleanup scheduler started", "interval", s.cfg.Interval, "max_age", s.cfg.MaxAge)
}

// Stop signals the scheduler to stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.logger.Info("cleanup scheduler stopped")
}

// RunNow triggers an immediate cleanup pass across every terminal
// status class, returning the total number of records removed.
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	total := 0
	for _, st := range []webhook.Status{webhook.StatusDelivered, webhook.StatusFailed} {
		n, err := s.manager.Cleanup(ctx, s.cfg.MaxAge, st)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			n, err := s.RunNow(ctx)
			if err != nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
				continue
			}
			s.logger.Info("scheduled cleanup completed", "removed", n)
		}
	}
}
