package dlq

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/lifecycle"
)

// Config holds the dead-letter module's tunables.
type Config struct {
	// AlertThreshold is the dead-letter count at which an operator alert
	// should fire; exposed through Module.AlertThreshold. This module
	// does not itself count dead-letter entries or raise alerts.
	AlertThreshold int64 `env:"DLQ_ALERT_THRESHOLD" envDefault:"100"`
}

// Module is the dead-letter facade composed in cmd/worker.
type Module struct {
	service *Service
	config  Config
}

// New builds the dead-letter Module watching the compute and webhook
// stream/consumer pairs for MaxDeliver advisories.
func New(js jetstream.JetStream, nc *nats.Conn, manager *lifecycle.Manager, computeStream, computeConsumer, webhookStream, webhookConsumer string, cfg Config, logger *slog.Logger) *Module {
	watch := WatchComputeAndWebhook(computeStream, computeConsumer, webhookStream, webhookConsumer)
	return &Module{
		service: NewService(js, nc, manager, watch, logger),
		config:  cfg,
	}
}

// Start begins listening for advisories.
func (m *Module) Start(ctx context.Context) error {
	return m.service.Start(ctx)
}

// Stop tears down subscriptions.
func (m *Module) Stop() {
	m.service.Stop()
}

// AlertThreshold returns the configured alert threshold.
func (m *Module) AlertThreshold() int64 {
	return m.config.AlertThreshold
}
