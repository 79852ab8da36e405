package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamManager handles JetStream stream and consumer creation. Unlike
// a single-stream manager bound to one config, this manager is handed
// a StreamConfig per call so the same instance can provision the
// compute, webhook, and dead-letter streams.
type StreamManager struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(js jetstream.JetStream, logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		js:     js,
		logger: logger.With("component", "stream-manager"),
	}
}

// EnsureStream creates or updates the stream with the given settings.
func (m *StreamManager) EnsureStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	storage := jetstream.FileStorage
	if strings.ToLower(cfg.Storage) == "memory" {
		storage = jetstream.MemoryStorage
	}

	streamCfg := jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		Storage:     storage,
		MaxAge:      cfg.MaxAge,
		MaxBytes:    cfg.MaxBytes,
		Replicas:    cfg.Replicas,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	// Try to get existing stream first
	_, err := m.js.Stream(ctx, cfg.Name)
	if err == nil {
		m.logger.Info("updating existing stream", "name", cfg.Name)
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to update stream: %w", err)
		}
		m.logger.Info("stream updated", "name", cfg.Name)
		return stream, nil
	}

	m.logger.Info("creating new stream", "name", cfg.Name, "subjects", cfg.Subjects)
	stream, err := m.js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	m.logger.Info("stream created",
		"name", cfg.Name,
		"storage", cfg.Storage,
		"max_age", cfg.MaxAge,
		"max_bytes", cfg.MaxBytes,
	)

	return stream, nil
}

// EnsureConsumer creates or updates a single durable pull consumer on
// the given stream.
func (m *StreamManager) EnsureConsumer(ctx context.Context, stream jetstream.Stream, cfg ConsumerConfig) (jetstream.Consumer, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}

	consumer, err := stream.Consumer(ctx, cfg.Name)
	if err == nil {
		m.logger.Info("updating existing consumer", "name", cfg.Name)
		consumer, err = stream.UpdateConsumer(ctx, consumerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to update consumer: %w", err)
		}
		return consumer, nil
	}

	m.logger.Info("creating new consumer", "name", cfg.Name, "filter", cfg.FilterSubject)
	consumer, err = stream.CreateConsumer(ctx, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	m.logger.Info("consumer created", "name", cfg.Name)
	return consumer, nil
}

// GetStreamInfo returns information about the named stream.
func (m *StreamManager) GetStreamInfo(ctx context.Context, name string) (*jetstream.StreamInfo, error) {
	stream, err := m.js.Stream(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	return info, nil
}
