package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/webhook"
)

// recordingJS captures published subjects and payloads without needing a
// real JetStream connection.
type recordingJS struct {
	jetstream.JetStream
	subjects []string
	payloads [][]byte
}

func (r *recordingJS) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return &jetstream.PubAck{}, nil
}

func TestPublisherEnqueueComputeGeneratesTaskID(t *testing.T) {
	js := &recordingJS{}
	pub := NewPublisher(js, ComputeSubject, nil)

	taskID, err := pub.EnqueueCompute(context.Background(), "corr-1", webhook.ClaimRequest{ReferenceID: "REF1"})
	if err != nil {
		t.Fatalf("EnqueueCompute: %v", err)
	}
	if taskID == "" {
		t.Fatal("want non-empty generated task_id")
	}
	if len(js.subjects) != 1 || js.subjects[0] != ComputeSubject {
		t.Fatalf("want one publish to %s, got %v", ComputeSubject, js.subjects)
	}

	var task webhook.QueueTask
	if err := json.Unmarshal(js.payloads[0], &task); err != nil {
		t.Fatalf("unmarshal published task: %v", err)
	}
	if task.Kind != webhook.TaskKindCompute {
		t.Errorf("task.Kind = %q, want %q", task.Kind, webhook.TaskKindCompute)
	}
	if task.TaskID != taskID {
		t.Errorf("task.TaskID = %q, want %q", task.TaskID, taskID)
	}
}

func TestPublisherEnqueueComputeWithIDUsesCallerTaskID(t *testing.T) {
	js := &recordingJS{}
	pub := NewPublisher(js, ComputeSubject, nil)

	if err := pub.EnqueueComputeWithID(context.Background(), "my-task-id", "corr-2", webhook.ClaimRequest{ReferenceID: "REF2"}); err != nil {
		t.Fatalf("EnqueueComputeWithID: %v", err)
	}

	var task webhook.QueueTask
	if err := json.Unmarshal(js.payloads[0], &task); err != nil {
		t.Fatalf("unmarshal published task: %v", err)
	}
	if task.TaskID != "my-task-id" {
		t.Errorf("task.TaskID = %q, want %q", task.TaskID, "my-task-id")
	}
}

func TestPublisherEnqueueDeliverCarriesResult(t *testing.T) {
	js := &recordingJS{}
	pub := NewPublisher(js, WebhookSubject, nil)

	result := json.RawMessage(`{"risk_score":7}`)
	if err := pub.EnqueueDeliver(context.Background(), "corr-3", "webhook-id-1", result); err != nil {
		t.Fatalf("EnqueueDeliver: %v", err)
	}

	var task webhook.QueueTask
	if err := json.Unmarshal(js.payloads[0], &task); err != nil {
		t.Fatalf("unmarshal published task: %v", err)
	}
	if task.Kind != webhook.TaskKindDeliver {
		t.Errorf("task.Kind = %q, want %q", task.Kind, webhook.TaskKindDeliver)
	}

	var payload webhook.DeliverPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("unmarshal deliver payload: %v", err)
	}
	if payload.WebhookID != "webhook-id-1" {
		t.Errorf("payload.WebhookID = %q, want %q", payload.WebhookID, "webhook-id-1")
	}
	if string(payload.Result) != string(result) {
		t.Errorf("payload.Result = %s, want %s", payload.Result, result)
	}
}
