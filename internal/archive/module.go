package archive

import (
	"context"
	"log/slog"

	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/observability"
)

// Module is the archive module facade: it wires the Archiver and its
// scheduler behind a Start/Stop/RunNow lifecycle, matching the
// compaction module's own facade shape.
type Module struct {
	archiver  *Archiver
	scheduler *scheduler
	cfg       Config
	logger    *slog.Logger
}

// New builds the archive module. s3Client is constructed with
// NewS3Client against a real endpoint; tests substitute a fake cold
// storage through NewArchiver, which takes the coldStorage interface.
func New(manager *lifecycle.Manager, s3Client *S3Client, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	archiver := NewArchiver(manager, s3Client, cfg, metrics, logger)
	return &Module{
		archiver:  archiver,
		scheduler: newScheduler(archiver, cfg.Schedule, logger),
		cfg:       cfg,
		logger:    logger.With("component", "archive-module"),
	}
}

// Start begins the scheduled archival sweep. If Enabled is false in the
// configuration, this is a no-op.
func (m *Module) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("archive module disabled, skipping start")
		return nil
	}
	m.scheduler.Start(ctx)
	return nil
}

// Stop stops the scheduler.
func (m *Module) Stop() {
	m.scheduler.Stop()
}

// RunNow triggers an immediate sweep outside the scheduled interval.
func (m *Module) RunNow(ctx context.Context) error {
	return m.archiver.Sweep(ctx)
}

// Archiver returns the underlying Archiver, e.g. to wire into
// internal/health as a NamedPool.
func (m *Module) Archiver() *Archiver {
	return m.archiver
}
