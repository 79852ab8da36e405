package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/claimcore/core/internal/observability"
)

// service manages the bloom filter lifecycle, including periodic rotation,
// and exposes the duplicate check with metrics instrumentation.
type service struct {
	filter  *bloomFilterSet
	metrics *observability.Metrics
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newService(window time.Duration, capacity uint, fpRate float64, metrics *observability.Metrics, logger *slog.Logger) *service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		filter:  newBloomFilterSet(window, capacity, fpRate),
		metrics: metrics,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// IsDuplicate reports whether referenceID has already been submitted
// within the dedup window. An empty reference ID always returns false —
// claim submission already rejects those as missing_required_field before
// this check runs, so this is purely defensive. Hits increment the
// IdempotencyDropped metric when metrics are configured.
func (s *service) IsDuplicate(referenceID string) bool {
	if referenceID == "" {
		return false
	}

	if s.filter.seen(referenceID) {
		if s.metrics != nil {
			s.metrics.IdempotencyDropped.Add(context.Background(), 1)
		}
		s.logger.Debug("duplicate claim submission dropped", "reference_id", referenceID)
		return true
	}

	return false
}

// Start launches the background goroutine that rotates the bloom filter
// every window/2 to maintain the sliding window. It stops when ctx is
// cancelled or Stop is called.
func (s *service) Start(ctx context.Context) {
	rotateInterval := s.filter.Window() / 2
	s.logger.Info("idempotency service started",
		"window", s.filter.Window(),
		"rotate_interval", rotateInterval,
	)

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(rotateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.filter.rotate()
				s.logger.Debug("bloom filter rotated")
			case <-ctx.Done():
				s.logger.Info("idempotency service stopping (context cancelled)")
				return
			case <-s.stopCh:
				s.logger.Info("idempotency service stopping (stop requested)")
				return
			}
		}
	}()
}

// Stop signals the rotation goroutine to stop and waits for it to finish.
func (s *service) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
