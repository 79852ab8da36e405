package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/claimcore/core/internal/breaker"
	"github.com/claimcore/core/internal/deliveryclient"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/urlvalidate"
	"github.com/claimcore/core/internal/webhook"
)

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
func (f *fakeStore) Scan(context.Context, status.Filter, int, int) (status.Page, error) {
	return status.Page{}, nil
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

func newOrchestrator(store *fakeStore) *Orchestrator {
	manager := lifecycle.New(store, nil)
	reg := breaker.New(breaker.DefaultConfig)
	client := deliveryclient.New(deliveryclient.Config{Timeout: 2 * time.Second})
	return New(manager, reg, client, urlvalidate.Config{AllowPrivateDestinations: true}, nil, nil)
}

func mustEnqueueTask(t *testing.T, webhookID string, result json.RawMessage) webhook.QueueTask {
	t.Helper()
	payload, err := json.Marshal(webhook.DeliverPayload{WebhookID: webhookID, Result: result})
	if err != nil {
		t.Fatal(err)
	}
	return webhook.QueueTask{Kind: webhook.TaskKindDeliver, TaskID: "t1", CorrelationID: "corr1", Payload: payload}
}

func TestOrchestrator_SuccessMarksDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	webhookID := "REF1_t1"
	_ = store.Put(context.Background(), webhook.Record{WebhookID: webhookID, WebhookURL: srv.URL, Status: webhook.StatusPending, MaxAttempts: 3})

	orc := newOrchestrator(store)
	task := mustEnqueueTask(t, webhookID, json.RawMessage(`{"ok":true}`))

	result := orc.Handle(context.Background(), task)
	if !result.Ack {
		t.Fatalf("want ack on success, got %+v", result)
	}
	got, _ := store.Get(context.Background(), webhookID)
	if got.Status != webhook.StatusDelivered {
		t.Fatalf("want delivered, got %s", got.Status)
	}
	if got.ResponseCode == nil || *got.ResponseCode != 200 {
		t.Fatalf("want response_code 200, got %+v", got.ResponseCode)
	}
}

func TestOrchestrator_ServerErrorSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore()
	webhookID := "REF2_t1"
	_ = store.Put(context.Background(), webhook.Record{WebhookID: webhookID, WebhookURL: srv.URL, Status: webhook.StatusPending, MaxAttempts: 3})

	orc := newOrchestrator(store)
	task := mustEnqueueTask(t, webhookID, json.RawMessage(`{"ok":true}`))

	result := orc.Handle(context.Background(), task)
	if result.Ack {
		t.Fatalf("want nak-with-delay on 5xx with attempts remaining, got ack")
	}
	got, _ := store.Get(context.Background(), webhookID)
	if got.Status != webhook.StatusRetrying {
		t.Fatalf("want retrying, got %s", got.Status)
	}
}

func TestOrchestrator_PermanentClientErrorFailsAndDeadLetters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newFakeStore()
	webhookID := "REF3_t1"
	_ = store.Put(context.Background(), webhook.Record{WebhookID: webhookID, WebhookURL: srv.URL, Status: webhook.StatusPending, MaxAttempts: 3})

	orc := newOrchestrator(store)
	task := mustEnqueueTask(t, webhookID, json.RawMessage(`{"ok":true}`))

	result := orc.Handle(context.Background(), task)
	if !result.Ack {
		t.Fatalf("want ack after permanent failure, got %+v", result)
	}
	got, _ := store.Get(context.Background(), webhookID)
	if got.Status != webhook.StatusFailed {
		t.Fatalf("want failed, got %s", got.Status)
	}
	dead, _ := store.GetDeadLetter(context.Background(), webhookID)
	if dead == nil {
		t.Fatal("expected dead-letter entry to be written")
	}
}

func TestOrchestrator_TerminalRecordDropsDuplicateTask(t *testing.T) {
	store := newFakeStore()
	webhookID := "REF4_t1"
	now := time.Now()
	_ = store.Put(context.Background(), webhook.Record{
		WebhookID: webhookID, Status: webhook.StatusDelivered, MaxAttempts: 3, CompletedAt: &now,
	})

	orc := newOrchestrator(store)
	task := mustEnqueueTask(t, webhookID, json.RawMessage(`{}`))

	result := orc.Handle(context.Background(), task)
	if !result.Ack {
		t.Fatalf("want ack (drop) for already-terminal record, got %+v", result)
	}
}

func TestOrchestrator_InvalidURLFailsPermanentlyWithoutHTTPCall(t *testing.T) {
	store := newFakeStore()
	webhookID := "REF5_t1"
	_ = store.Put(context.Background(), webhook.Record{WebhookID: webhookID, WebhookURL: "not-a-url", Status: webhook.StatusPending, MaxAttempts: 3})

	manager := lifecycle.New(store, nil)
	reg := breaker.New(breaker.DefaultConfig)
	client := deliveryclient.New(deliveryclient.Config{Timeout: 2 * time.Second})
	orc := New(manager, reg, client, urlvalidate.Config{}, nil, nil)

	task := mustEnqueueTask(t, webhookID, json.RawMessage(`{}`))
	result := orc.Handle(context.Background(), task)
	if !result.Ack {
		t.Fatalf("want ack, got %+v", result)
	}
	got, _ := store.Get(context.Background(), webhookID)
	if got.Status != webhook.StatusFailed {
		t.Fatalf("want failed, got %s", got.Status)
	}
}
