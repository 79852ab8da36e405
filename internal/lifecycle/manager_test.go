package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// fakeStore is an in-memory Store used to test the lifecycle manager
// without a NATS dependency, matching the port-first testing style the
// corpus uses (fakes implement the interface, not mocks of a struct).
type fakeStore struct {
	mu      sync.Mutex
	records map[string]webhook.Record
	dead    map[string]webhook.DeadLetterEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]webhook.Record{}, dead: map[string]webhook.DeadLetterEntry{}}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Put(ctx context.Context, r webhook.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.WebhookID] = r
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*webhook.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	delete(f.records, id)
	return ok, nil
}

func (f *fakeStore) Scan(ctx context.Context, filter status.Filter, page, pageSize int) (status.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []webhook.Record
	for _, r := range f.records {
		all = append(all, r)
	}
	return status.Page{Items: all, Total: len(all)}, nil
}

func (f *fakeStore) PutDeadLetter(ctx context.Context, e webhook.DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[e.WebhookID] = e
	return nil
}

func (f *fakeStore) GetDeadLetter(ctx context.Context, id string) (*webhook.DeadLetterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.dead[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeStore) BulkDelete(ctx context.Context, filter status.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, r := range f.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.OlderThan > 0 {
			cutoff := time.Now().Add(-time.Duration(filter.OlderThan) * time.Second)
			if !r.CreatedAt.Before(cutoff) {
				continue
			}
		}
		delete(f.records, id)
		n++
	}
	return n, nil
}

func TestManager_TerminalWriteIsFinal(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)
	ctx := context.Background()

	rec := webhook.Record{WebhookID: "REF1_t1", ReferenceID: "REF1", TaskID: "t1", MaxAttempts: 3}
	if err := m.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Transition(ctx, rec.WebhookID, webhook.StatusInProgress, func(r *webhook.Record) { r.Attempts++ }); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Transition(ctx, rec.WebhookID, webhook.StatusDelivered, func(r *webhook.Record) {
		code := 200
		r.ResponseCode = &code
	}); err != nil {
		t.Fatal(err)
	}

	// subsequent transition must fail: terminal state is frozen
	_, err := m.Transition(ctx, rec.WebhookID, webhook.StatusRetrying, nil)
	if !errors.Is(err, webhook.ErrTerminal) {
		t.Fatalf("want ErrTerminal, got %v", err)
	}

	got, _ := m.Get(ctx, rec.WebhookID)
	if got.Status != webhook.StatusDelivered {
		t.Fatalf("terminal status must not change, got %s", got.Status)
	}
}

func TestManager_IllegalTransitionRejected(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)
	ctx := context.Background()

	rec := webhook.Record{WebhookID: "REF1_t1", MaxAttempts: 3}
	_ = m.Create(ctx, rec)

	_, err := m.Transition(ctx, rec.WebhookID, webhook.StatusDelivered, nil)
	if !errors.Is(err, webhook.ErrIllegalTransition) {
		t.Fatalf("pending -> delivered directly must be illegal, got %v", err)
	}
}

func TestManager_TTLLaw(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)
	ctx := context.Background()

	rec := webhook.Record{WebhookID: "REF1_t1", MaxAttempts: 3}
	_ = m.Create(ctx, rec)
	_, _ = m.Transition(ctx, rec.WebhookID, webhook.StatusInProgress, nil)
	got, _ := m.Transition(ctx, rec.WebhookID, webhook.StatusDelivered, nil)

	ttl := got.ExpiresAt.Sub(time.Now())
	if ttl <= 0 || ttl > webhook.TTLDelivered+time.Second {
		t.Fatalf("delivered TTL out of bounds: %v", ttl)
	}
}

func TestManager_CleanupIdempotent(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)
	ctx := context.Background()

	old := webhook.Record{
		WebhookID:   "REF1_t1",
		Status:      webhook.StatusFailed,
		CreatedAt:   time.Now().Add(-48 * time.Hour),
		MaxAttempts: 3,
	}
	_ = store.Put(ctx, old)

	n1, err := m.Cleanup(ctx, 24*time.Hour, webhook.StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if n1 != 1 {
		t.Fatalf("want 1 deleted, got %d", n1)
	}

	n2, err := m.Cleanup(ctx, 24*time.Hour, webhook.StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("second cleanup run must be a no-op, got %d", n2)
	}
}

func TestManager_BoundedAttempts(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)
	ctx := context.Background()

	rec := webhook.Record{WebhookID: "REF1_t1", MaxAttempts: 3}
	_ = m.Create(ctx, rec)

	for range 3 {
		got, err := m.Transition(ctx, rec.WebhookID, webhook.StatusInProgress, func(r *webhook.Record) { r.Attempts++ })
		if err != nil {
			// after the first successful in_progress the state machine
			// requires retrying as an intermediate step; simulate it
			_, _ = m.Transition(ctx, rec.WebhookID, webhook.StatusRetrying, nil)
			got, err = m.Transition(ctx, rec.WebhookID, webhook.StatusInProgress, func(r *webhook.Record) { r.Attempts++ })
			if err != nil {
				t.Fatal(err)
			}
		}
		if got.Attempts > got.MaxAttempts {
			t.Fatalf("attempts exceeded max_attempts: %d > %d", got.Attempts, got.MaxAttempts)
		}
	}
}
