package archive

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// fakeStore is an in-memory status.Store that honors Status and
// OlderThan filtering, unlike the pass-through fakes used by other
// packages' tests, since Sweep's batching logic depends on it.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]webhook.Record
	dead    map[string]webhook.DeadLetterEntry
	now     time.Time
}

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{records: map[string]webhook.Record{}, dead: map[string]webhook.DeadLetterEntry{}, now: now}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Put(_ context.Context, r webhook.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.WebhookID] = r
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*webhook.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	delete(f.records, id)
	return ok, nil
}

func (f *fakeStore) Scan(_ context.Context, filter status.Filter, _, pageSize int) (status.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := f.now
	if filter.OlderThan > 0 {
		cutoff = f.now.Add(-time.Duration(filter.OlderThan) * time.Second)
	}
	var items []webhook.Record
	for _, r := range f.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.OlderThan > 0 && !r.CreatedAt.Before(cutoff) {
			continue
		}
		items = append(items, r)
	}
	total := len(items)
	if pageSize > 0 && len(items) > pageSize {
		items = items[:pageSize]
	}
	return status.Page{Items: items, Total: total}, nil
}

func (f *fakeStore) PutDeadLetter(_ context.Context, e webhook.DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[e.WebhookID] = e
	return nil
}

func (f *fakeStore) GetDeadLetter(_ context.Context, id string) (*webhook.DeadLetterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.dead[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeStore) BulkDelete(context.Context, status.Filter) (int, error) { return 0, nil }

// fakeColdStorage records uploaded keys and payload sizes without
// touching a real S3/MinIO endpoint.
type fakeColdStorage struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func newFakeColdStorage() *fakeColdStorage {
	return &fakeColdStorage{uploads: map[string][]byte{}}
}

func (f *fakeColdStorage) Upload(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = data
	return nil
}

func (f *fakeColdStorage) GenerateKey(st string, year, month, day int) string {
	return fmt.Sprintf("webhook-records/status=%s/year=%d/month=%02d/day=%02d/records_test.parquet", st, year, month, day)
}

func TestArchiver_SweepArchivesEligibleTerminalRecords(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	ctx := context.Background()

	old := now.Add(-2 * time.Hour)
	recent := now.Add(-1 * time.Minute)

	store.Put(ctx, webhook.Record{WebhookID: "REF1_t1", ReferenceID: "REF1", Status: webhook.StatusDelivered, CreatedAt: old})
	store.Put(ctx, webhook.Record{WebhookID: "REF2_t2", ReferenceID: "REF2", Status: webhook.StatusDelivered, CreatedAt: recent})
	store.Put(ctx, webhook.Record{WebhookID: "REF3_t3", ReferenceID: "REF3", Status: webhook.StatusFailed, CreatedAt: old, LastError: "max attempts exceeded"})
	store.Put(ctx, webhook.Record{WebhookID: "REF4_t4", ReferenceID: "REF4", Status: webhook.StatusPending, CreatedAt: old})
	store.PutDeadLetter(ctx, webhook.DeadLetterEntry{WebhookID: "REF3_t3", ErrorClass: "max_attempts", Reason: "circuit permanently open"})

	manager := lifecycle.New(store, nil)
	cold := newFakeColdStorage()
	cfg := Config{RetentionAge: time.Hour, BatchSize: 10, Parquet: ParquetConfig{Compression: "snappy"}}
	archiver := NewArchiver(manager, cold, cfg, nil, nil)

	if err := archiver.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if _, err := store.Get(ctx, "REF1_t1"); err != nil {
		t.Fatal(err)
	}
	if r, _ := store.Get(ctx, "REF1_t1"); r != nil {
		t.Fatalf("old delivered record should have been archived and removed, got %+v", r)
	}
	if r, _ := store.Get(ctx, "REF3_t3"); r != nil {
		t.Fatalf("old failed record should have been archived and removed, got %+v", r)
	}
	if r, _ := store.Get(ctx, "REF2_t2"); r == nil {
		t.Fatal("recent delivered record should not have been archived yet")
	}
	if r, _ := store.Get(ctx, "REF4_t4"); r == nil {
		t.Fatal("pending record should never be archived")
	}

	if len(cold.uploads) == 0 {
		t.Fatal("expected at least one Parquet file uploaded")
	}
}

func TestArchiver_SweepWithNothingEligibleIsNoop(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	ctx := context.Background()
	store.Put(ctx, webhook.Record{WebhookID: "REF1_t1", ReferenceID: "REF1", Status: webhook.StatusDelivered, CreatedAt: now})

	manager := lifecycle.New(store, nil)
	cold := newFakeColdStorage()
	cfg := Config{RetentionAge: time.Hour, BatchSize: 10}
	archiver := NewArchiver(manager, cold, cfg, nil, nil)

	if err := archiver.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(cold.uploads) != 0 {
		t.Fatalf("expected no uploads, got %d", len(cold.uploads))
	}
}

func TestArchiver_HealthyBeforeFirstSweep(t *testing.T) {
	manager := lifecycle.New(newFakeStore(time.Now()), nil)
	archiver := NewArchiver(manager, newFakeColdStorage(), Config{RetentionAge: time.Hour, BatchSize: 10}, nil, nil)
	if !archiver.Healthy(time.Minute) {
		t.Fatal("archiver with no sweep yet should report healthy")
	}
}
