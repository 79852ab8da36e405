package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used across this core's services.
// Instruments are created once at startup and shared with middleware,
// handlers, and service components.
type Metrics struct {
	// HTTP ingress metrics
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Webhook delivery metrics
	WebhookDeliveryTotal   otelmetric.Int64Counter
	WebhookDeliverySeconds otelmetric.Float64Histogram

	// Circuit breaker gauge-style metric: recorded as an up-down counter
	// keyed by host whose value encodes the state (0=closed, 1=half_open,
	// 2=open), since OTel has no native string-valued gauge.
	CircuitBreakerStatus otelmetric.Int64UpDownCounter

	// Task queue metrics
	QueueDepth         otelmetric.Int64UpDownCounter
	ComputeTaskSeconds otelmetric.Float64Histogram

	// Dead-letter queue metrics
	DLQDepth otelmetric.Int64UpDownCounter

	// Ingress idempotency metrics
	IdempotencyDropped otelmetric.Int64Counter

	// Archival metrics
	ArchiveRuns            otelmetric.Int64Counter
	ArchiveRecordsArchived otelmetric.Int64Counter
	ArchiveBytesWritten    otelmetric.Int64Counter
	ArchiveDurationSeconds otelmetric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given Meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	m.WebhookDeliveryTotal, err = meter.Int64Counter(
		"webhook.delivery.total",
		otelmetric.WithDescription("Webhook delivery attempts by outcome status and destination host"),
	)
	if err != nil {
		return nil, err
	}

	m.WebhookDeliverySeconds, err = meter.Float64Histogram(
		"webhook.delivery.seconds",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Webhook delivery attempt duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.CircuitBreakerStatus, err = meter.Int64UpDownCounter(
		"circuit_breaker.status",
		otelmetric.WithDescription("Circuit breaker state per destination host (0=closed,1=half_open,2=open)"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueDepth, err = meter.Int64UpDownCounter(
		"queue.depth",
		otelmetric.WithDescription("Approximate in-flight task count per queue"),
	)
	if err != nil {
		return nil, err
	}

	m.ComputeTaskSeconds, err = meter.Float64Histogram(
		"compute.task.seconds",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Compute task execution duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.DLQDepth, err = meter.Int64UpDownCounter(
		"dlq.depth",
		otelmetric.WithDescription("Dead-letter entries recorded"),
	)
	if err != nil {
		return nil, err
	}

	m.IdempotencyDropped, err = meter.Int64Counter(
		"idempotency.dropped",
		otelmetric.WithDescription("Claim submissions rejected as duplicates of a recently-seen reference_id"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveRuns, err = meter.Int64Counter(
		"archive.runs",
		otelmetric.WithDescription("Completed archival sweeps"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveRecordsArchived, err = meter.Int64Counter(
		"archive.records.archived",
		otelmetric.WithDescription("Terminal webhook records moved to cold storage"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveBytesWritten, err = meter.Int64Counter(
		"archive.bytes.written",
		otelmetric.WithDescription("Bytes written to cold storage by the archiver"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveDurationSeconds, err = meter.Float64Histogram(
		"archive.duration.seconds",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of one archival sweep"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// breakerStateValue maps a breaker state name to the integer value used
// by the CircuitBreakerStatus gauge-style metric.
func breakerStateValue(state string) int64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}
