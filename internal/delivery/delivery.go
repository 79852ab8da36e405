// Package delivery orchestrates the Webhook Delivery Task: the state
// machine driving a single WebhookRecord through the circuit breaker,
// the HTTP delivery client, and the retry policy engine, per attempt.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/claimcore/core/internal/breaker"
	"github.com/claimcore/core/internal/deliveryclient"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/retrypolicy"
	"github.com/claimcore/core/internal/urlvalidate"
	"github.com/claimcore/core/internal/webhook"
)

// Metrics is the subset of the observability surface this orchestrator
// emits to; nil is a valid no-op value so tests don't need a meter.
type Metrics interface {
	RecordDelivery(ctx context.Context, status, host string, duration time.Duration)
	SetBreakerState(ctx context.Context, host string, state webhook.BreakerState)
}

// Orchestrator drives one delivery attempt per Handle invocation.
type Orchestrator struct {
	manager  *lifecycle.Manager
	breakers *breaker.Registry
	client   *deliveryclient.Client
	urlCfg   urlvalidate.Config
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a delivery Orchestrator.
func New(manager *lifecycle.Manager, breakers *breaker.Registry, client *deliveryclient.Client, urlCfg urlvalidate.Config, metrics Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		manager:  manager,
		breakers: breakers,
		client:   client,
		urlCfg:   urlCfg,
		metrics:  metrics,
		logger:   logger.With("component", "delivery-orchestrator"),
		now:      time.Now,
	}
}

// Handle is the queue.Handler invoked per dequeued delivery task.
func (o *Orchestrator) Handle(ctx context.Context, task webhook.QueueTask) queue.Result {
	var payload webhook.DeliverPayload
	if err := decodeDeliverPayload(task.Payload, &payload); err != nil {
		o.logger.Error("failed to decode deliver payload, acking to avoid poison-pill redelivery", "error", err)
		return queue.Result{Ack: true}
	}

	log := o.logger.With("webhook_id", payload.WebhookID, "correlation_id", task.CorrelationID)

	// Step 1: read the record; absent or terminal means nothing to do.
	record, err := o.manager.Get(ctx, payload.WebhookID)
	if err != nil {
		log.Error("status store read failed", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}
	if record == nil {
		log.Warn("delivery task references unknown webhook_id, dropping")
		return queue.Result{Ack: true}
	}
	if record.Status.Terminal() {
		log.Info("webhook already in terminal state, dropping duplicate delivery task", "status", record.Status)
		return queue.Result{Ack: true}
	}

	// Step 2: mark in_progress, attempts += 1.
	record, err = o.manager.Transition(ctx, payload.WebhookID, webhook.StatusInProgress, func(r *webhook.Record) {
		now := o.now()
		r.LastAttemptAt = &now
		r.Attempts++
		r.Payload = payload.Result
		r.PayloadDigest = webhook.PayloadDigest(payload.Result)
	})
	if err != nil {
		log.Warn("failed to mark in_progress", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}

	// Step 3: validate URL.
	if valErr := urlvalidate.Validate(record.WebhookURL, o.urlCfg); valErr != nil {
		return o.failPermanent(ctx, log, record, retrypolicy.ClassInvalidURL, string(retrypolicy.ClassInvalidURL), valErr.Error())
	}

	// Step 4/5: breaker-gated delivery, classified outcome.
	host := deliveryclient.Host(record.WebhookURL)
	start := o.now()
	var result deliveryclient.Result
	breakerErr := o.breakers.Call(host, func() error {
		result = o.client.Deliver(ctx, deliveryclient.Request{
			URL:           record.WebhookURL,
			Body:          payload.Result,
			CorrelationID: task.CorrelationID,
			WebhookID:     payload.WebhookID,
			Attempt:       record.Attempts,
		})
		if result.Class != retrypolicy.ClassSuccess2xx {
			return errDeliveryFailed
		}
		return nil
	})
	duration := o.now().Sub(start)

	circuitOpen := breakerErr == breaker.ErrOpen
	if circuitOpen {
		result = deliveryclient.Result{Class: retrypolicy.ClassConnectionError, ErrorDetail: "circuit breaker open"}
	}

	if o.metrics != nil {
		o.metrics.RecordDelivery(ctx, string(result.Class), host, duration)
		o.metrics.SetBreakerState(ctx, host, o.breakerState(host))
	}

	// last_error is the short failure-class token (§3), not the full
	// detail string. A breaker short-circuit is classified as
	// connection_error for retry purposes but surfaces as the more
	// specific "circuit_open" token here, since no HTTP attempt was
	// actually made.
	lastError := string(result.Class)
	if circuitOpen {
		lastError = "circuit_open"
	}

	decision := retrypolicy.Decide(result.Class, record.Attempts, record.MaxAttempts, retrypolicy.DefaultDeliveryParams)
	switch decision.Verdict {
	case retrypolicy.VerdictCompleteSuccess:
		return o.complete(ctx, log, record, result)
	case retrypolicy.VerdictScheduleRetry:
		return o.scheduleRetry(ctx, log, record, result, lastError, decision.Delay)
	default:
		return o.failPermanent(ctx, log, record, result.Class, lastError, result.ErrorDetail)
	}
}

func (o *Orchestrator) breakerState(host string) webhook.BreakerState {
	for _, s := range o.breakers.Snapshot() {
		if s.Host == host {
			return s.State
		}
	}
	return webhook.BreakerClosed
}

func (o *Orchestrator) complete(ctx context.Context, log *slog.Logger, record *webhook.Record, result deliveryclient.Result) queue.Result {
	_, err := o.manager.Transition(ctx, record.WebhookID, webhook.StatusDelivered, func(r *webhook.Record) {
		now := o.now()
		r.CompletedAt = &now
		code := result.StatusCode
		r.ResponseCode = &code
	})
	if err != nil {
		log.Error("failed to mark delivered", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}
	log.Info("webhook delivered", "status_code", result.StatusCode)
	return queue.Result{Ack: true}
}

func (o *Orchestrator) scheduleRetry(ctx context.Context, log *slog.Logger, record *webhook.Record, result deliveryclient.Result, lastError string, delay time.Duration) queue.Result {
	_, err := o.manager.Transition(ctx, record.WebhookID, webhook.StatusRetrying, func(r *webhook.Record) {
		r.LastError = lastError
	})
	if err != nil {
		log.Error("failed to mark retrying", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}
	log.Info("delivery failed, scheduling retry", "class", result.Class, "last_error", lastError, "delay", delay, "attempts", record.Attempts)
	return queue.Result{Ack: false, Delay: delay}
}

func (o *Orchestrator) failPermanent(ctx context.Context, log *slog.Logger, record *webhook.Record, class retrypolicy.OutcomeClass, lastError, detail string) queue.Result {
	_, err := o.manager.Transition(ctx, record.WebhookID, webhook.StatusFailed, func(r *webhook.Record) {
		now := o.now()
		r.CompletedAt = &now
		r.LastError = lastError
	})
	if err != nil {
		log.Error("failed to mark failed", "error", err)
		return queue.Result{Ack: false, Delay: 10 * time.Second}
	}

	dlqErr := o.manager.WriteDeadLetter(ctx, webhook.DeadLetterEntry{
		WebhookID:     record.WebhookID,
		TaskID:        record.TaskID,
		WebhookURL:    record.WebhookURL,
		Payload:       record.Payload,
		ErrorClass:    string(class),
		ErrorDetail:   detail,
		Attempts:      record.Attempts,
		CorrelationID: record.CorrelationID,
	})
	if dlqErr != nil {
		// The terminal status write already succeeded; the dead-letter
		// write is retried by a subsequent invocation of this same
		// record rather than failing the whole task, since attempts
		// are already exhausted and there's nothing further to retry
		// via the queue.
		log.Error("failed to write dead-letter entry", "error", dlqErr)
	}
	log.Warn("delivery failed permanently", "class", class, "detail", detail)
	return queue.Result{Ack: true}
}
