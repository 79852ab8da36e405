// Package status implements the Status Store: a durable key/value
// façade over an external in-memory data service (NATS JetStream
// Key-Value), holding webhook status records and dead-letter entries
// with per-class TTLs.
package status

import (
	"context"

	"github.com/claimcore/core/internal/webhook"
)

// Filter narrows a Scan call.
type Filter struct {
	ReferenceIDPrefix string
	Status            webhook.Status
	// OlderThan, when non-zero, additionally restricts results (and
	// BulkDelete) to records created before now-OlderThan.
	OlderThan int64 // seconds; 0 means no age restriction
}

// Page is one page of a Scan result. Total is best-effort.
type Page struct {
	Items []webhook.Record
	Total int
}

// Store is the port the rest of the core depends on. Implementations
// must be safe for concurrent use. Any backing-store error is
// surfaced as an IOError-classified error (see ErrIO); callers of
// mutation methods must treat failure as non-fatal to the in-flight
// delivery, logging with the correlation id instead of propagating a
// crash.
type Store interface {
	// Ping verifies store reachability for the health surface.
	Ping(ctx context.Context) error

	Put(ctx context.Context, record webhook.Record) error
	Get(ctx context.Context, webhookID string) (*webhook.Record, error)
	Delete(ctx context.Context, webhookID string) (bool, error)
	Scan(ctx context.Context, filter Filter, page, pageSize int) (Page, error)

	PutDeadLetter(ctx context.Context, entry webhook.DeadLetterEntry) error
	GetDeadLetter(ctx context.Context, webhookID string) (*webhook.DeadLetterEntry, error)

	// BulkDelete removes records matching filter AND created before
	// now-OlderThan, returning the count deleted.
	BulkDelete(ctx context.Context, filter Filter) (int, error)
}
