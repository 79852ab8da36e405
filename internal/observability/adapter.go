package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/claimcore/core/internal/webhook"
)

// DeliveryMetrics adapts Metrics to the delivery.Metrics port, recording
// webhook delivery outcomes and circuit breaker state transitions.
type DeliveryMetrics struct {
	m *Metrics

	mu   sync.Mutex
	last map[string]int64
}

// NewDeliveryMetrics builds a DeliveryMetrics adapter over the given Metrics.
func NewDeliveryMetrics(m *Metrics) *DeliveryMetrics {
	return &DeliveryMetrics{m: m, last: make(map[string]int64)}
}

// RecordDelivery records one delivery attempt's outcome class, destination
// host, and wall-clock duration.
func (d *DeliveryMetrics) RecordDelivery(ctx context.Context, status, host string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("status", status),
		attribute.String("host", host),
	)
	d.m.WebhookDeliveryTotal.Add(ctx, 1, attrs)
	d.m.WebhookDeliverySeconds.Record(ctx, duration.Seconds(), attrs)
}

// SetBreakerState records the current circuit breaker state for a host.
// CircuitBreakerStatus is an up-down counter standing in for a gauge (OTel
// has no string-valued gauge), so this tracks the last value reported per
// host and emits only the delta needed to move the counter to the new value.
func (d *DeliveryMetrics) SetBreakerState(ctx context.Context, host string, state webhook.BreakerState) {
	value := breakerStateValue(string(state))

	d.mu.Lock()
	delta := value - d.last[host]
	d.last[host] = value
	d.mu.Unlock()

	if delta == 0 {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("host", host))
	d.m.CircuitBreakerStatus.Add(ctx, delta, attrs)
}

// QueueMetrics adapts Metrics to the queue package's depth-reporting needs.
type QueueMetrics struct {
	m *Metrics
}

// NewQueueMetrics builds a QueueMetrics adapter over the given Metrics.
func NewQueueMetrics(m *Metrics) *QueueMetrics {
	return &QueueMetrics{m: m}
}

// SetQueueDepth records the approximate in-flight task count for a queue.
func (q *QueueMetrics) SetQueueDepth(ctx context.Context, queueName string, delta int64) {
	attrs := otelmetric.WithAttributes(attribute.String("queue", queueName))
	q.m.QueueDepth.Add(ctx, delta, attrs)
}

// ComputeMetrics adapts Metrics to the compute package's timing needs.
type ComputeMetrics struct {
	m *Metrics
}

// NewComputeMetrics builds a ComputeMetrics adapter over the given Metrics.
func NewComputeMetrics(m *Metrics) *ComputeMetrics {
	return &ComputeMetrics{m: m}
}

// RecordComputeDuration records one compute task's execution duration.
func (c *ComputeMetrics) RecordComputeDuration(ctx context.Context, duration time.Duration) {
	c.m.ComputeTaskSeconds.Record(ctx, duration.Seconds())
}

// RecordDeadLetter increments the dead-letter depth gauge for a queue kind.
func (c *ComputeMetrics) RecordDeadLetter(ctx context.Context, kind string) {
	attrs := otelmetric.WithAttributes(attribute.String("kind", kind))
	c.m.DLQDepth.Add(ctx, 1, attrs)
}
