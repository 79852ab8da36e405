package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	natsinternal "github.com/claimcore/core/internal/nats"
)

// Config tunes the queue module: separate stream configurations per
// purpose (separate logical queues per purpose) plus
// worker concurrency and per-task ack wait.
type Config struct {
	Compute    natsinternal.StreamConfig `envPrefix:"COMPUTE_"`
	Webhook    natsinternal.StreamConfig `envPrefix:"WEBHOOK_"`
	DeadLetter natsinternal.StreamConfig `envPrefix:"DEAD_LETTER_"`

	ComputeConcurrency int           `env:"COMPUTE_CONCURRENCY" envDefault:"1"`
	DeliveryConcurrency int          `env:"DELIVERY_CONCURRENCY" envDefault:"4"`
	MaxDeliver         int           `env:"MAX_DELIVER" envDefault:"50"`
	AckWait            time.Duration `env:"ACK_WAIT" envDefault:"30s"`
	FetchWait          time.Duration `env:"FETCH_WAIT" envDefault:"5s"`
}

// DefaultConfig returns the stream naming/subjects used by this core.
func DefaultConfig() Config {
	return Config{
		Compute: natsinternal.StreamConfig{
			Name: ComputeStreamName, Subjects: []string{ComputeSubject},
			MaxAge: 7 * 24 * time.Hour, MaxBytes: 1 << 30, Replicas: 1, Storage: "file",
		},
		Webhook: natsinternal.StreamConfig{
			Name: WebhookStreamName, Subjects: []string{WebhookSubject},
			MaxAge: 7 * 24 * time.Hour, MaxBytes: 1 << 30, Replicas: 1, Storage: "file",
		},
		DeadLetter: natsinternal.StreamConfig{
			Name: DeadLetterStreamName, Subjects: []string{DeadLetterSubject},
			MaxAge: 30 * 24 * time.Hour, MaxBytes: 1 << 30, Replicas: 1, Storage: "file",
		},
		ComputeConcurrency:  1,
		DeliveryConcurrency: 4,
		MaxDeliver:          50,
		AckWait:             30 * time.Second,
		FetchWait:           5 * time.Second,
	}
}

// Module provisions the three streams/consumers and exposes
// publishers and the means to build worker pools over them.
type Module struct {
	js jetstream.JetStream
	sm *natsinternal.StreamManager

	cfg Config

	computeStream jetstream.Stream
	webhookStream jetstream.Stream

	ComputePublisher *Publisher
	WebhookPublisher *Publisher

	logger *slog.Logger
}

// New provisions streams and consumers and returns a ready Module.
func New(ctx context.Context, js jetstream.JetStream, cfg Config, logger *slog.Logger) (*Module, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sm := natsinternal.NewStreamManager(js, logger)

	computeStream, err := sm.EnsureStream(ctx, cfg.Compute)
	if err != nil {
		return nil, err
	}
	webhookStream, err := sm.EnsureStream(ctx, cfg.Webhook)
	if err != nil {
		return nil, err
	}
	if _, err := sm.EnsureStream(ctx, cfg.DeadLetter); err != nil {
		return nil, err
	}

	m := &Module{
		js:               js,
		sm:               sm,
		cfg:              cfg,
		computeStream:    computeStream,
		webhookStream:    webhookStream,
		ComputePublisher: NewPublisher(js, ComputeSubject, logger),
		WebhookPublisher: NewPublisher(js, WebhookSubject, logger),
		logger:           logger.With("component", "queue-module"),
	}
	return m, nil
}

// ComputePool builds the compute worker pool (default concurrency=1
// for strict FIFO).
func (m *Module) ComputePool(ctx context.Context, handler Handler) (*Pool, error) {
	consumer, err := m.sm.EnsureConsumer(ctx, m.computeStream, natsinternal.ConsumerConfig{
		Name:          ComputeConsumerName,
		FilterSubject: ComputeSubject,
		AckWait:       m.cfg.AckWait,
		MaxAckPending: m.cfg.ComputeConcurrency,
		MaxDeliver:    m.cfg.MaxDeliver,
	})
	if err != nil {
		return nil, err
	}
	return NewPool(consumer, m.cfg.ComputeConcurrency, m.cfg.FetchWait, handler, m.logger), nil
}

// WebhookPool builds the delivery worker pool (default concurrency=4).
func (m *Module) WebhookPool(ctx context.Context, handler Handler) (*Pool, error) {
	consumer, err := m.sm.EnsureConsumer(ctx, m.webhookStream, natsinternal.ConsumerConfig{
		Name:          WebhookConsumerName,
		FilterSubject: WebhookSubject,
		AckWait:       m.cfg.AckWait,
		MaxAckPending: m.cfg.DeliveryConcurrency,
		MaxDeliver:    m.cfg.MaxDeliver,
	})
	if err != nil {
		return nil, err
	}
	return NewPool(consumer, m.cfg.DeliveryConcurrency, m.cfg.FetchWait, handler, m.logger), nil
}

// StreamNames returns the compute/webhook stream names for the DLQ
// advisory listener to subscribe against.
func (m *Module) StreamNames() (compute, webhookStream string) {
	return ComputeStreamName, WebhookStreamName
}
