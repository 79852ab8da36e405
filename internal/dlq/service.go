// Package dlq listens for NATS JetStream MaxDeliver advisory events — the
// backstop for a task that exhausted redelivery without ever reaching a
// terminal retrypolicy verdict inside a worker (e.g., the worker process
// crashed mid-handling, repeatedly, across every delivery attempt) — and
// folds it into the webhook lifecycle as a dead-letter record instead of
// silently losing the task.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/webhook"
)

// advisorySubject builds the NATS advisory subject for MaxDeliver exceeded
// events: $JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.<stream>.<consumer>
func advisorySubject(streamName, consumerName string) string {
	return fmt.Sprintf("$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.%s.%s", streamName, consumerName)
}

// maxDeliverAdvisory is the JSON payload NATS emits when a message has
// been delivered more than MaxDeliver times without acknowledgment.
type maxDeliverAdvisory struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Stream     string `json:"stream"`
	Consumer   string `json:"consumer"`
	StreamSeq  uint64 `json:"stream_seq"`
	Deliveries uint64 `json:"deliveries"`
}

// streamConsumer pairs a stream name with the durable consumer name to
// watch for MaxDeliver advisories.
type streamConsumer struct {
	Stream   string
	Consumer string
}

// Service subscribes to MaxDeliver advisories across the compute and
// webhook streams and converts any exhausted task into a dead-letter
// record via the lifecycle manager.
type Service struct {
	js        jetstream.JetStream
	nc        *nats.Conn
	manager   *lifecycle.Manager
	watch     []streamConsumer
	logger    *slog.Logger
	subs      []*nats.Subscription
}

// NewService creates the advisory-listening Service.
func NewService(js jetstream.JetStream, nc *nats.Conn, manager *lifecycle.Manager, watch []streamConsumer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{js: js, nc: nc, manager: manager, watch: watch, logger: logger.With("component", "dlq-service")}
}

// WatchComputeAndWebhook is a convenience constructor for the two
// production streams/consumers this core runs.
func WatchComputeAndWebhook(computeStream, computeConsumer, webhookStream, webhookConsumer string) []streamConsumer {
	return []streamConsumer{
		{Stream: computeStream, Consumer: computeConsumer},
		{Stream: webhookStream, Consumer: webhookConsumer},
	}
}

// Start subscribes to every watched stream/consumer's advisory subject.
func (s *Service) Start(ctx context.Context) error {
	for _, sc := range s.watch {
		subject := advisorySubject(sc.Stream, sc.Consumer)
		s.logger.Info("subscribing to MaxDeliver advisory", "subject", subject, "consumer", sc.Consumer)

		stream := sc.Stream
		sub, err := s.nc.Subscribe(subject, s.handleAdvisory(ctx, stream))
		if err != nil {
			s.Stop()
			return fmt.Errorf("subscribe advisory %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("dlq service started", "watching", len(s.watch))
	return nil
}

// Stop unsubscribes from every advisory subject.
func (s *Service) Stop() {
	for _, sub := range s.subs {
		if sub.IsValid() {
			if err := sub.Unsubscribe(); err != nil {
				s.logger.Error("unsubscribe failed", "subject", sub.Subject, "error", err)
			}
		}
	}
	s.subs = nil
	s.logger.Info("dlq service stopped")
}

func (s *Service) handleAdvisory(ctx context.Context, streamName string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var advisory maxDeliverAdvisory
		if err := json.Unmarshal(msg.Data, &advisory); err != nil {
			s.logger.Error("failed to parse MaxDeliver advisory", "error", err, "data", string(msg.Data))
			return
		}

		s.logger.Warn("max deliver exceeded",
			"stream", advisory.Stream, "consumer", advisory.Consumer,
			"stream_seq", advisory.StreamSeq, "deliveries", advisory.Deliveries)

		stream, err := s.js.Stream(ctx, streamName)
		if err != nil {
			s.logger.Error("failed to resolve stream for dead-letter fetch", "stream", streamName, "error", err)
			return
		}

		rawMsg, err := stream.GetMsg(ctx, advisory.StreamSeq)
		if err != nil {
			s.logger.Error("failed to fetch exhausted message", "stream", streamName, "seq", advisory.StreamSeq, "error", err)
			return
		}

		var task webhook.QueueTask
		if err := json.Unmarshal(rawMsg.Data, &task); err != nil {
			s.logger.Error("failed to decode exhausted task payload", "error", err)
			return
		}

		if err := s.deadLetter(ctx, task, advisory); err != nil {
			s.logger.Error("failed to record dead letter", "task_id", task.TaskID, "error", err)
		}
	}
}

func (s *Service) deadLetter(ctx context.Context, task webhook.QueueTask, advisory maxDeliverAdvisory) error {
	switch task.Kind {
	case webhook.TaskKindDeliver:
		var payload webhook.DeliverPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode deliver payload: %w", err)
		}
		entry := webhook.DeadLetterEntry{
			WebhookID:     payload.WebhookID,
			TaskID:        task.TaskID,
			CorrelationID: task.CorrelationID,
			Reason:        "max_deliver_exceeded",
			Deliveries:    int(advisory.Deliveries),
		}
		if err := s.manager.WriteDeadLetter(ctx, entry); err != nil {
			return err
		}
		_, err := s.manager.Transition(ctx, payload.WebhookID, webhook.StatusFailed, func(r *webhook.Record) {
			r.LastError = "max_deliver_exceeded"
		})
		if err != nil {
			s.logger.Warn("dead-letter written but status transition failed", "webhook_id", payload.WebhookID, "error", err)
		}
		return nil
	case webhook.TaskKindCompute:
		// A compute task's payload carries no webhook_id, and this
		// handler does not derive one: the pending record ingress
		// created for a claim with a webhook_url is not transitioned
		// here. The exhaustion is surfaced as a log line and left for
		// operator investigation via the raw NATS advisory alone.
		s.logger.Error("compute task exhausted retries; webhook record not transitioned",
			"task_id", task.TaskID, "correlation_id", task.CorrelationID)
		return nil
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
