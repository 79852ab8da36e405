// Package webhook defines the core data model: webhook status records,
// dead-letter entries, circuit breaker state, and queue task envelopes.
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a WebhookRecord.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusRetrying   Status = "retrying"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// Terminal reports whether status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// TTL windows per the lifecycle law: delivered records are short-lived,
// everything else is retained for a week, dead-letter entries for a month.
const (
	TTLDelivered  = 30 * time.Minute
	TTLOther      = 7 * 24 * time.Hour
	TTLDeadLetter = 30 * 24 * time.Hour
)

// TTLFor returns the retention window for a record in the given status.
func TTLFor(status Status) time.Duration {
	if status == StatusDelivered {
		return TTLDelivered
	}
	return TTLOther
}

// DefaultMaxAttempts is the default delivery attempt ceiling.
const DefaultMaxAttempts = 3

// ID builds the canonical webhook_id from a reference id and task id.
func ID(referenceID, taskID string) string {
	return referenceID + "_" + taskID
}

// Record is the primary entity tracked by the Status Store: one delivery
// state machine instance per webhook_id.
type Record struct {
	WebhookID     string     `json:"webhook_id"`
	ReferenceID   string     `json:"reference_id"`
	TaskID        string     `json:"task_id"`
	WebhookURL    string     `json:"webhook_url"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ResponseCode  *int       `json:"response_code,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CorrelationID string     `json:"correlation_id"`
	PayloadDigest string     `json:"payload_digest,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// ApplyTTL stamps ExpiresAt according to the lifecycle TTL law, based on
// the given "now".
func (r *Record) ApplyTTL(now time.Time) {
	r.ExpiresAt = now.Add(TTLFor(r.Status))
}

// PayloadDigest returns a stable lowercase-hex SHA-256 digest of an
// outbound payload, carried on Record as a receiver-side idempotency
// hint (§3) alongside the at-least-once delivery guarantee.
func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// DeadLetterEntry is recorded when a delivery is permanently abandoned.
type DeadLetterEntry struct {
	WebhookID     string          `json:"webhook_id"`
	TaskID        string          `json:"task_id,omitempty"`
	WebhookURL    string          `json:"webhook_url"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ErrorClass    string          `json:"error_class"`
	ErrorDetail   string          `json:"error_detail"`
	Reason        string          `json:"reason,omitempty"`
	Deliveries    int             `json:"deliveries,omitempty"`
	Attempts      int             `json:"attempts"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// DeadLetterKey builds the storage key for a dead-letter entry.
func DeadLetterKey(webhookID string) string {
	return "dead_letter:webhook:" + webhookID
}

// StatusKey builds the storage key for a webhook status record.
func StatusKey(webhookID string) string {
	return "webhook_status:" + webhookID
}
