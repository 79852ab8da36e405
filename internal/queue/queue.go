// Package queue implements the Task Queue & Worker Pool: FIFO delivery
// of QueueTasks over NATS JetStream with late acknowledgement, bounded
// worker concurrency, prefetch=1, and delayed retry materialized as a
// NAK-with-delay redelivery rather than an in-process sleep.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/webhook"
)

// Subjects used for the compute and webhook streams. Each stream has
// exactly one subject; the dead-letter stream is storage-only and
// never consumed by a worker.
const (
	ComputeSubject    = "tasks.compute"
	WebhookSubject    = "tasks.webhook"
	DeadLetterSubject = "tasks.dead_letter"

	ComputeStreamName    = "CLAIMCORE_COMPUTE"
	WebhookStreamName    = "CLAIMCORE_WEBHOOK"
	DeadLetterStreamName = "CLAIMCORE_DEAD_LETTER"

	ComputeConsumerName = "compute-workers"
	WebhookConsumerName = "webhook-workers"
)

// Publisher enqueues tasks onto a JetStream stream subject.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a Publisher bound to one subject.
func NewPublisher(js jetstream.JetStream, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{js: js, subject: subject, logger: logger.With("component", "queue-publisher", "subject", subject)}
}

// EnqueueCompute publishes a new compute task, generating its task_id.
func (p *Publisher) EnqueueCompute(ctx context.Context, correlationID string, claim webhook.ClaimRequest) (string, error) {
	taskID := uuid.NewString()
	return taskID, p.EnqueueComputeWithID(ctx, taskID, correlationID, claim)
}

// EnqueueComputeWithID publishes a compute task under a caller-chosen
// task_id. Ingress uses this so it can create the pending WebhookRecord
// (when webhook_url is present) before the task is visible to a worker,
// closing the race where compute finishes before the record exists.
func (p *Publisher) EnqueueComputeWithID(ctx context.Context, taskID, correlationID string, claim webhook.ClaimRequest) error {
	payload, err := json.Marshal(webhook.ComputePayload{Claim: claim})
	if err != nil {
		return fmt.Errorf("marshal compute payload: %w", err)
	}
	task := webhook.QueueTask{
		Kind:          webhook.TaskKindCompute,
		TaskID:        taskID,
		CorrelationID: correlationID,
		Payload:       payload,
	}
	return p.publish(ctx, task)
}

// EnqueueDeliver publishes a new delivery task carrying a compute
// result for the given webhook_id.
func (p *Publisher) EnqueueDeliver(ctx context.Context, correlationID, webhookID string, result json.RawMessage) error {
	payload, err := json.Marshal(webhook.DeliverPayload{WebhookID: webhookID, Result: result})
	if err != nil {
		return fmt.Errorf("marshal deliver payload: %w", err)
	}
	task := webhook.QueueTask{
		Kind:          webhook.TaskKindDeliver,
		TaskID:        uuid.NewString(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
	return p.publish(ctx, task)
}

func (p *Publisher) publish(ctx context.Context, task webhook.QueueTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}
