package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/observability"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// archivedStatuses are the terminal states eligible for a sweep. Pending,
// in_progress, and retrying records are still live and never archived.
var archivedStatuses = []webhook.Status{webhook.StatusDelivered, webhook.StatusFailed}

// coldStorage is the subset of S3Client the Archiver depends on, so
// tests can substitute a fake without a real S3/MinIO endpoint.
type coldStorage interface {
	Upload(ctx context.Context, key string, data []byte) error
	GenerateKey(status string, year, month, day int) string
}

// Archiver sweeps terminal WebhookRecords out of the status store into
// Parquet files in cold storage, enriching failed records with their
// dead-letter detail before the entry itself expires out of the store.
type Archiver struct {
	manager *lifecycle.Manager
	s3      coldStorage
	parquet *ParquetWriter
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	lastSweep time.Time
}

// NewArchiver creates an Archiver over the given cold storage backend.
func NewArchiver(manager *lifecycle.Manager, s3Client coldStorage, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		manager: manager,
		s3:      s3Client,
		parquet: NewParquetWriter(cfg.Parquet),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "archiver"),
	}
}

// Sweep archives every eligible record across both terminal statuses. It
// repeatedly pulls batches from page 0, since each successful batch is
// deleted from the store before the next pull, keeping later pages from
// ever shifting underneath an in-flight scan.
func (a *Archiver) Sweep(ctx context.Context) error {
	start := time.Now()
	var totalRecords int
	var totalBytes int64

	for _, st := range archivedStatuses {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, written, err := a.archiveBatch(ctx, st)
			if err != nil {
				return fmt.Errorf("archive batch (status=%s): %w", st, err)
			}
			totalRecords += n
			totalBytes += written
			if n < a.cfg.BatchSize {
				break
			}
		}
	}

	duration := time.Since(start)
	a.mu.Lock()
	a.lastSweep = time.Now()
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ArchiveRuns.Add(ctx, 1)
		a.metrics.ArchiveRecordsArchived.Add(ctx, int64(totalRecords))
		a.metrics.ArchiveBytesWritten.Add(ctx, totalBytes)
		a.metrics.ArchiveDurationSeconds.Record(ctx, duration.Seconds())
	}
	a.logger.Info("archive sweep complete",
		"records", totalRecords, "bytes", totalBytes, "duration", duration)
	return nil
}

// archiveBatch pulls up to cfg.BatchSize eligible records for one
// status, writes one Parquet file per creation-date group, uploads
// each, and deletes the archived records. Returns the number of records
// archived and total bytes written.
func (a *Archiver) archiveBatch(ctx context.Context, st webhook.Status) (int, int64, error) {
	page, err := a.manager.List(ctx, status.Filter{
		Status:    st,
		OlderThan: int64(a.cfg.RetentionAge.Seconds()),
	}, 0, a.cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list records: %w", err)
	}
	if len(page.Items) == 0 {
		return 0, 0, nil
	}

	groups := a.groupByDay(page.Items)
	var bytesWritten int64
	for key, records := range groups {
		rows := make([]Row, 0, len(records))
		for _, r := range records {
			var dl *webhook.DeadLetterEntry
			if r.Status == webhook.StatusFailed {
				dl, err = a.manager.GetDeadLetter(ctx, r.WebhookID)
				if err != nil {
					a.logger.Warn("failed to fetch dead-letter detail, archiving without it",
						"webhook_id", r.WebhookID, "error", err)
					dl = nil
				}
			}
			rows = append(rows, rowFromRecord(r, dl))
		}

		data, err := a.parquet.Write(rows)
		if err != nil {
			return 0, 0, fmt.Errorf("write parquet: %w", err)
		}

		s3Key := a.s3.GenerateKey(string(st), key.year, key.month, key.day)
		if err := a.s3.Upload(ctx, s3Key, data); err != nil {
			return 0, 0, fmt.Errorf("upload %s: %w", s3Key, err)
		}
		bytesWritten += int64(len(data))
	}

	for _, r := range page.Items {
		if _, err := a.manager.Delete(ctx, r.WebhookID); err != nil {
			a.logger.Error("failed to delete archived record",
				"webhook_id", r.WebhookID, "error", err)
		}
	}

	return len(page.Items), bytesWritten, nil
}

type dayKey struct {
	year, month, day int
}

func (a *Archiver) groupByDay(records []webhook.Record) map[dayKey][]webhook.Record {
	groups := make(map[dayKey][]webhook.Record)
	for _, r := range records {
		created := r.CreatedAt.UTC()
		key := dayKey{year: created.Year(), month: int(created.Month()), day: created.Day()}
		groups[key] = append(groups[key], r)
	}
	return groups
}

// Healthy reports whether a sweep has completed within the given
// window, satisfying internal/health.Pool for wiring into the health
// aggregator.
func (a *Archiver) Healthy(within time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSweep.IsZero() {
		return true // no sweep due yet, not a failure
	}
	return time.Since(a.lastSweep) <= within
}
