// Package compute orchestrates the Compute Task: given a validated
// claim envelope, it optionally creates a pending WebhookRecord, runs a
// pluggable compute function under a per-task timeout, and enqueues a
// delivery task carrying either the real result or a synthetic error
// payload on final failure.
package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/retrypolicy"
	"github.com/claimcore/core/internal/webhook"
)

// Func is the pluggable compute function the core consumes but does not
// implement; the production engine is out of this core's scope.
type Func func(ctx context.Context, claim webhook.ClaimRequest) (json.RawMessage, error)

// TransientError wraps a Func error to mark it as retriable. Any other
// error returned from Func is treated as a permanent failure.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so the orchestrator retries it per Params instead
// of failing permanently on the first attempt.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Config tunes the compute orchestrator.
type Config struct {
	Timeout     time.Duration        `env:"COMPUTE_TASK_TIMEOUT" envDefault:"1h"`
	MaxAttempts int                  `env:"COMPUTE_MAX_ATTEMPTS" envDefault:"3"`
	Retry       retrypolicy.Params
}

// DefaultConfig mirrors the delivery retry tunables, per the resolved
// open question that compute retries use the same backoff shape.
func DefaultConfig() Config {
	return Config{
		Timeout:     time.Hour,
		MaxAttempts: 3,
		Retry:       retrypolicy.DefaultComputeParams,
	}
}

// Orchestrator runs compute tasks dequeued from the Task Queue.
type Orchestrator struct {
	fn        Func
	manager   *lifecycle.Manager
	publisher *queue.Publisher
	cfg       Config
	logger    *slog.Logger
}

// New builds a compute Orchestrator.
func New(fn Func, manager *lifecycle.Manager, publisher *queue.Publisher, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	return &Orchestrator{fn: fn, manager: manager, publisher: publisher, cfg: cfg, logger: logger.With("component", "compute-orchestrator")}
}

// Accept is the pending-record creation step: it creates the pending
// record for a claim that carries a webhook_url, under the given
// task_id. The ingress handler in internal/httpapi does not call it; it
// performs the same step itself (acceptPending) before enqueueing.
func (o *Orchestrator) Accept(ctx context.Context, referenceID, taskID string, claim webhook.ClaimRequest, correlationID string) error {
	if claim.WebhookURL == "" {
		return nil
	}
	rec := webhook.Record{
		WebhookID:     webhook.ID(referenceID, taskID),
		ReferenceID:   referenceID,
		TaskID:        taskID,
		WebhookURL:    claim.WebhookURL,
		MaxAttempts:   webhook.DefaultMaxAttempts,
		CorrelationID: correlationID,
	}
	return o.manager.Create(ctx, rec)
}

// Handle is the queue.Handler invoked per dequeued compute task.
func (o *Orchestrator) Handle(ctx context.Context, task webhook.QueueTask) queue.Result {
	log := o.logger.With("task_id", task.TaskID, "correlation_id", task.CorrelationID)

	var payload webhook.ComputePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		log.Error("failed to decode compute payload, acking to avoid poison-pill redelivery", "error", err)
		return queue.Result{Ack: true}
	}
	claim := payload.Claim

	attempts := task.AttemptCount
	if attempts < 1 {
		attempts = 1
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	result, err := o.fn(runCtx, claim)
	cancel()

	if err == nil {
		return o.deliverResult(ctx, log, claim, task.TaskID, task.CorrelationID, result)
	}

	var transient *TransientError
	if !errors.As(err, &transient) {
		log.Warn("compute failed permanently", "error", err)
		return o.deliverSyntheticError(ctx, log, claim, task.TaskID, task.CorrelationID, err)
	}

	class := retrypolicy.ClassConnectionError // reuse the retriable-error bucket; compute has no HTTP outcome
	decision := retrypolicy.Decide(class, attempts, o.cfg.MaxAttempts, o.cfg.Retry)
	switch decision.Verdict {
	case retrypolicy.VerdictScheduleRetry:
		log.Info("compute failed transiently, scheduling retry", "delay", decision.Delay, "attempt", attempts)
		return queue.Result{Ack: false, Delay: decision.Delay}
	default:
		log.Warn("compute exhausted transient retries", "error", err)
		return o.deliverSyntheticError(ctx, log, claim, task.TaskID, task.CorrelationID, err)
	}
}

func (o *Orchestrator) deliverResult(ctx context.Context, log *slog.Logger, claim webhook.ClaimRequest, taskID, correlationID string, result json.RawMessage) queue.Result {
	if claim.WebhookURL == "" {
		return queue.Result{Ack: true}
	}
	webhookID := webhook.ID(claim.ReferenceID, taskID)
	if err := o.publisher.EnqueueDeliver(ctx, correlationID, webhookID, result); err != nil {
		log.Error("failed to enqueue delivery task", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}
	return queue.Result{Ack: true}
}

func (o *Orchestrator) deliverSyntheticError(ctx context.Context, log *slog.Logger, claim webhook.ClaimRequest, taskID, correlationID string, computeErr error) queue.Result {
	if claim.WebhookURL == "" {
		return queue.Result{Ack: true}
	}
	synthetic, err := json.Marshal(map[string]any{
		"error":           true,
		"error_detail":    computeErr.Error(),
		"reference_id":    claim.ReferenceID,
		"processing_mode": claim.ProcessingMode,
	})
	if err != nil {
		log.Error("failed to marshal synthetic error payload", "error", err)
		return queue.Result{Ack: true}
	}
	webhookID := webhook.ID(claim.ReferenceID, taskID)
	if err := o.publisher.EnqueueDeliver(ctx, correlationID, webhookID, synthetic); err != nil {
		log.Error("failed to enqueue synthetic-error delivery task", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}
	return queue.Result{Ack: true}
}

// ValidationError reports a claim that failed envelope validation
// before it ever reached the queue.
type ValidationError struct{ Field, Reason string }

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid claim field %q: %s", e.Field, e.Reason)
}
