package webhook

import "time"

// BreakerState is the externally-observable snapshot of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreakerState is the per-destination-host breaker record.
type CircuitBreakerState struct {
	Host                string        `json:"host"`
	State               BreakerState  `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
	FailureThreshold    int           `json:"failure_threshold"`
	ResetTimeout        time.Duration `json:"reset_timeout_seconds"`
	ExcludedClasses     []string      `json:"excluded_error_classes,omitempty"`
}
