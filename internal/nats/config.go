// Package nats provides the NATS JetStream connection, stream, and
// key-value bucket wiring shared by the Task Queue, Status Store, and
// dead-letter advisory listener.
package nats

import (
	"time"
)

// Config holds NATS connection and stream configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// Name is the client connection name for monitoring
	Name string `env:"NATS_CLIENT_NAME" envDefault:"claimcore"`

	// MaxReconnects is the maximum number of reconnection attempts
	MaxReconnects int `env:"NATS_MAX_RECONNECTS" envDefault:"60"`

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`

	// Timeout is the connection timeout
	Timeout time.Duration `env:"NATS_TIMEOUT" envDefault:"5s"`

	// Compute is the compute_queue stream configuration
	Compute StreamConfig `envPrefix:"NATS_STREAM_COMPUTE_"`

	// Webhook is the webhook_queue stream configuration
	Webhook StreamConfig `envPrefix:"NATS_STREAM_WEBHOOK_"`

	// DeadLetter is the dead_letter_queue (storage-only) stream configuration
	DeadLetter StreamConfig `envPrefix:"NATS_STREAM_DLQ_"`
}

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	// Name is the stream name
	Name string `env:"NAME" envDefault:"CLAIMCORE_TASKS"`

	// Subjects are the subjects to capture
	Subjects []string `env:"SUBJECTS" envDefault:"tasks.>"`

	// MaxAge is the maximum age of messages in the stream
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"168h"` // 7 days

	// MaxBytes is the maximum size of the stream in bytes
	MaxBytes int64 `env:"MAX_BYTES" envDefault:"1073741824"` // 1GB

	// Replicas is the number of replicas for the stream
	Replicas int `env:"REPLICAS" envDefault:"1"`

	// Storage is the storage type (file or memory)
	Storage string `env:"STORAGE" envDefault:"file"`
}

// ConsumerConfig holds JetStream consumer configuration. MaxAckPending
// is set to the worker count so that the aggregate prefetch across all
// workers sharing a durable consumer never exceeds one in-flight task
// per worker (prefetch of 1 per worker).
type ConsumerConfig struct {
	// Name is the consumer durable name
	Name string

	// FilterSubject is the subject filter for the consumer
	FilterSubject string

	// AckWait is the time to wait for acknowledgment before redelivery
	AckWait time.Duration

	// MaxAckPending is the maximum number of pending acknowledgments
	MaxAckPending int

	// MaxDeliver is the maximum number of delivery attempts before the
	// max-deliveries advisory fires
	MaxDeliver int
}
