// Package lifecycle implements the Status Lifecycle Manager: the
// single entry point for WebhookRecord mutations. It enforces the
// state machine, assigns TTLs, serializes per-webhook_id writes, and
// runs the periodic cleanup operation.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// legalTransitions enumerates the state machine edges for a webhook
// record's lifecycle.
// Any transition not listed here is rejected.
var legalTransitions = map[webhook.Status]map[webhook.Status]bool{
	webhook.StatusPending: {
		webhook.StatusInProgress: true,
		webhook.StatusFailed:     true, // e.g. a delivery task dead-lettered before any attempt was recorded
	},
	webhook.StatusInProgress: {
		webhook.StatusDelivered: true,
		webhook.StatusRetrying:  true,
		webhook.StatusFailed:    true,
	},
	webhook.StatusRetrying: {
		webhook.StatusInProgress: true,
		webhook.StatusFailed:     true,
	},
}

// Manager is the Status Lifecycle Manager.
type Manager struct {
	store  status.Store
	logger *slog.Logger

	keyMu sync.Map // webhook_id -> *sync.Mutex, serializes read-modify-write per key
	now   func() time.Time
}

// New creates a Manager over the given Store.
func New(store status.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger.With("component", "lifecycle-manager"),
		now:    time.Now,
	}
}

func (m *Manager) lockFor(webhookID string) *sync.Mutex {
	v, _ := m.keyMu.LoadOrStore(webhookID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create writes the initial pending record for a newly-submitted claim
// that carries a webhook_url.
func (m *Manager) Create(ctx context.Context, record webhook.Record) error {
	mu := m.lockFor(record.WebhookID)
	mu.Lock()
	defer mu.Unlock()

	record.Status = webhook.StatusPending
	record.CreatedAt = m.now()
	record.ApplyTTL(m.now())
	return m.store.Put(ctx, record)
}

// Get returns the current record for webhookID, or nil if absent.
func (m *Manager) Get(ctx context.Context, webhookID string) (*webhook.Record, error) {
	return m.store.Get(ctx, webhookID)
}

// Transition reads the current record, validates the requested status
// transition, applies mutate, assigns TTL, and writes it back. The
// write is compare-and-set against the status observed at read time;
// a concurrent writer that changed the status in between causes one
// retry before surfacing ErrStaleWrite.
func (m *Manager) Transition(ctx context.Context, webhookID string, next webhook.Status, mutate func(*webhook.Record)) (*webhook.Record, error) {
	mu := m.lockFor(webhookID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		record, err := m.store.Get(ctx, webhookID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, webhook.ErrNotFound
		}
		if record.Status.Terminal() {
			return record, webhook.ErrTerminal
		}
		if !legalTransitions[record.Status][next] {
			return nil, fmt.Errorf("%w: %s -> %s", webhook.ErrIllegalTransition, record.Status, next)
		}

		expectedPredecessor := record.Status
		record.Status = next
		if mutate != nil {
			mutate(record)
		}
		record.ApplyTTL(m.now())

		// Re-read immediately before writing to catch a concurrent
		// mutation of the same key; the in-process mutex already
		// prevents this within one manager instance, but the check
		// documents and enforces the compare-and-set contract
		// required for multi-instance deployments sharing the store.
		current, err := m.store.Get(ctx, webhookID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Status != expectedPredecessor {
			lastErr = webhook.ErrStaleWrite
			continue
		}

		if err := m.store.Put(ctx, *record); err != nil {
			return nil, err
		}
		return record, nil
	}

	return nil, fmt.Errorf("%w (after retry)", lastErr)
}

// List returns a filtered, paginated view of webhook records.
func (m *Manager) List(ctx context.Context, filter status.Filter, page, pageSize int) (status.Page, error) {
	return m.store.Scan(ctx, filter, page, pageSize)
}

// Delete removes a single record.
func (m *Manager) Delete(ctx context.Context, webhookID string) (bool, error) {
	return m.store.Delete(ctx, webhookID)
}

// BulkDelete removes records matching filter, idempotently: running it
// twice with the same parameters returns (n, 0) on the second run
// because the first run already removed every matching record.
func (m *Manager) BulkDelete(ctx context.Context, filter status.Filter) (int, error) {
	return m.store.BulkDelete(ctx, filter)
}

// WriteDeadLetter persists a DeadLetterEntry for a permanently
// abandoned delivery.
func (m *Manager) WriteDeadLetter(ctx context.Context, entry webhook.DeadLetterEntry) error {
	entry.CreatedAt = m.now()
	entry.ExpiresAt = entry.CreatedAt.Add(webhook.TTLDeadLetter)
	return m.store.PutDeadLetter(ctx, entry)
}

// GetDeadLetter returns the dead-letter entry for webhookID, if any.
func (m *Manager) GetDeadLetter(ctx context.Context, webhookID string) (*webhook.DeadLetterEntry, error) {
	return m.store.GetDeadLetter(ctx, webhookID)
}

// Cleanup enumerates and removes records older than maxAge, optionally
// restricted to a single status. It is safe to call concurrently with
// normal traffic and is idempotent.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration, statusFilter webhook.Status) (int, error) {
	return m.store.BulkDelete(ctx, status.Filter{
		Status:    statusFilter,
		OlderThan: int64(maxAge.Seconds()),
	})
}

// Ping delegates to the backing store for the health surface.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
