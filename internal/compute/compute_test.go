package compute

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// fakeStore mirrors lifecycle's own test double; kept package-local
// since internal test doubles aren't shared across packages.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]webhook.Record
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]webhook.Record{}} }

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
func (f *fakeStore) PutDeadLetter(context.Context, webhook.DeadLetterEntry) error { return nil }
func (f *fakeStore) GetDeadLetter(context.Context, string) (*webhook.DeadLetterEntry, error) {
	return nil, nil
}
func (f *fakeStore) BulkDelete(context.Context, status.Filter) (int, error) { return 0, nil }

// recordingJS captures what was published without needing a real
// JetStream connection.
type recordingJS struct {
	jetstream.JetStream
	published []string
}

func (r *recordingJS) Publish(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	r.published = append(r.published, subject)
	return &jetstream.PubAck{}, nil
}

func TestOrchestrator_SuccessEnqueuesDelivery(t *testing.T) {
	store := newFakeStore()
	manager := lifecycle.New(store, nil)
	js := &recordingJS{}
	pub := queue.NewPublisher(js, queue.WebhookSubject, nil)

	fn := func(_ context.Context, claim webhook.ClaimRequest) (json.RawMessage, error) {
		return json.Marshal(map[string]string{"ok": "true"})
	}
	orc := New(fn, manager, pub, DefaultConfig(), nil)

	claim := webhook.ClaimRequest{ReferenceID: "REF1", WebhookURL: "https://example.com/hook"}
	if err := orc.Accept(context.Background(), "REF1", "t1", claim, "corr1"); err != nil {
		t.Fatal(err)
	}

	payload, _ := json.Marshal(webhook.ComputePayload{Claim: claim})
	task := webhook.QueueTask{Kind: webhook.TaskKindCompute, TaskID: "t1", CorrelationID: "corr1", Payload: payload}

	result := orc.Handle(context.Background(), task)
	if !result.Ack {
		t.Fatalf("want ack, got %+v", result)
	}
	if len(js.published) != 1 || js.published[0] != queue.WebhookSubject {
		t.Fatalf("expected one delivery task published, got %v", js.published)
	}
}

func TestOrchestrator_TransientFailureSchedulesRetry(t *testing.T) {
	store := newFakeStore()
	manager := lifecycle.New(store, nil)
	js := &recordingJS{}
	pub := queue.NewPublisher(js, queue.WebhookSubject, nil)

	fn := func(context.Context, webhook.ClaimRequest) (json.RawMessage, error) {
		return nil, Transient(errors.New("dependency unavailable"))
	}
	orc := New(fn, manager, pub, DefaultConfig(), nil)

	claim := webhook.ClaimRequest{ReferenceID: "REF2", WebhookURL: "https://example.com/hook"}
	payload, _ := json.Marshal(webhook.ComputePayload{Claim: claim})
	task := webhook.QueueTask{Kind: webhook.TaskKindCompute, TaskID: "t2", CorrelationID: "corr2", Payload: payload, AttemptCount: 1}

	result := orc.Handle(context.Background(), task)
	if result.Ack {
		t.Fatalf("want nak-with-delay, got ack")
	}
	if result.Delay <= 0 {
		t.Fatalf("want positive delay, got %v", result.Delay)
	}
}

func TestOrchestrator_PermanentFailureDeliversSyntheticError(t *testing.T) {
	store := newFakeStore()
	manager := lifecycle.New(store, nil)
	js := &recordingJS{}
	pub := queue.NewPublisher(js, queue.WebhookSubject, nil)

	fn := func(context.Context, webhook.ClaimRequest) (json.RawMessage, error) {
		return nil, errors.New("bad claim data")
	}
	orc := New(fn, manager, pub, DefaultConfig(), nil)

	claim := webhook.ClaimRequest{ReferenceID: "REF3", WebhookURL: "https://example.com/hook"}
	payload, _ := json.Marshal(webhook.ComputePayload{Claim: claim})
	task := webhook.QueueTask{Kind: webhook.TaskKindCompute, TaskID: "t3", CorrelationID: "corr3", Payload: payload}

	result := orc.Handle(context.Background(), task)
	if !result.Ack {
		t.Fatalf("want ack after permanent failure, got %+v", result)
	}
	if len(js.published) != 1 {
		t.Fatalf("expected synthetic-error delivery task published, got %v", js.published)
	}
}
