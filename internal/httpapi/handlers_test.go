package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/breaker"
	"github.com/claimcore/core/internal/health"
	"github.com/claimcore/core/internal/idempotency"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// recordingJS captures published subjects without needing a real
// JetStream connection, mirroring internal/compute's own test double.
type recordingJS struct {
	jetstream.JetStream
	published []string
}

func (r *recordingJS) Publish(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	r.published = append(r.published, subject)
	return &jetstream.PubAck{}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]webhook.Record
	dead    map[string]webhook.DeadLetterEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]webhook.Record{}, dead: map[string]webhook.DeadLetterEntry{}}
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
func (f *fakeStore) Scan(_ context.Context, filter status.Filter, page, pageSize int) (status.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []webhook.Record
	for _, r := range f.records {
		items = append(items, r)
	}
	return status.Page{Items: items, Total: len(items)}, nil
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

func newTestServer(store *fakeStore) *Server {
	manager := lifecycle.New(store, nil)
	reg := breaker.New(breaker.DefaultConfig)
	checker := health.New(manager, nil, reg)
	computeFn := func(ctx context.Context, claim webhook.ClaimRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"risk_score":42}`), nil
	}
	pub := queue.NewPublisher(&recordingJS{}, queue.ComputeSubject, nil)
	cfg := DefaultConfig()
	cfg.RateLimit.Enabled = false
	idem := idempotency.New(idempotency.DefaultConfig(), nil, nil)
	return New(cfg, Deps{
		Manager:      manager,
		ComputeQueue: pub,
		ComputeFn:    computeFn,
		Idempotency:  idem,
		Health:       checker,
	})
}

func (s *Server) testHandler() http.Handler {
	return s.httpServer.Handler
}

func TestProcessClaim_SyncWithoutWebhookReturnsResult(t *testing.T) {
	srv := newTestServer(newFakeStore())
	body := `{"reference_id":"REF1","employee_number":"E1","first_name":"A","last_name":"B"}`
	req := httptest.NewRequest(http.MethodPost, "/process-claim-basic", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProcessClaim_AsyncWithWebhookReturns202(t *testing.T) {
	srv := newTestServer(newFakeStore())
	body := `{"reference_id":"REF2","employee_number":"E1","first_name":"A","last_name":"B","webhook_url":"https://example.com/hook"}`
	req := httptest.NewRequest(http.MethodPost, "/process-claim-basic", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("want 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "processing_queued" {
		t.Fatalf("want processing_queued, got %+v", resp)
	}
}

func TestProcessClaim_DuplicateReferenceIDRejected(t *testing.T) {
	srv := newTestServer(newFakeStore())
	body := `{"reference_id":"REF-DUP","employee_number":"E1","first_name":"A","last_name":"B"}`

	first := httptest.NewRequest(http.MethodPost, "/process-claim-basic", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first submission: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	second := httptest.NewRequest(http.MethodPost, "/process-claim-basic", bytes.NewBufferString(body))
	rec = httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate submission: want 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetWebhookStatus_NotFound(t *testing.T) {
	srv := newTestServer(newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/webhook-status/missing", nil)
	rec := httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestGetWebhookStatus_Found(t *testing.T) {
	store := newFakeStore()
	_ = store.Put(context.Background(), webhook.Record{
		WebhookID: "REF3_t1", ReferenceID: "REF3", TaskID: "t1",
		Status: webhook.StatusDelivered, Payload: json.RawMessage(`{"x":1}`),
	})
	srv := newTestServer(store)
	req := httptest.NewRequest(http.MethodGet, "/webhook-status/REF3_t1", nil)
	rec := httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var got webhook.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Payload != nil {
		t.Fatalf("want payload stripped from response, got %s", got.Payload)
	}
}

func TestHealthCheck_ReturnsOK(t *testing.T) {
	srv := newTestServer(newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.testHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}
