package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/webhook"
)

// mockJetStreamMsg implements jetstream.Msg for testing the worker pool's
// ack/nak behavior without a real JetStream connection.
type mockJetStreamMsg struct {
	data      []byte
	ackCalled atomic.Bool
	nakCalled atomic.Bool
	nakDelay  time.Duration
	ackErr    error
	nakErr    error
}

func (m *mockJetStreamMsg) Data() []byte         { return m.data }
func (m *mockJetStreamMsg) Subject() string      { return "tasks.compute" }
func (m *mockJetStreamMsg) Reply() string        { return "" }
func (m *mockJetStreamMsg) Headers() nats.Header { return nats.Header{} }
func (m *mockJetStreamMsg) Ack() error {
	m.ackCalled.Store(true)
	return m.ackErr
}
func (m *mockJetStreamMsg) Nak() error {
	m.nakCalled.Store(true)
	return m.nakErr
}
func (m *mockJetStreamMsg) NakWithDelay(delay time.Duration) error {
	m.nakCalled.Store(true)
	m.nakDelay = delay
	return m.nakErr
}
func (m *mockJetStreamMsg) InProgress() error                  { return nil }
func (m *mockJetStreamMsg) Term() error                         { return nil }
func (m *mockJetStreamMsg) TermWithReason(reason string) error  { return nil }
func (m *mockJetStreamMsg) DoubleAck(ctx context.Context) error { return m.Ack() }
func (m *mockJetStreamMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: 1}, nil
}

func TestPoolProcessUnmarshalErrorAcks(t *testing.T) {
	p := NewPool(nil, 1, time.Second, func(context.Context, webhook.QueueTask) Result {
		t.Fatal("handler should not run for undecodable tasks")
		return Result{}
	}, nil)

	msg := &mockJetStreamMsg{data: []byte("not json")}
	p.process(context.Background(), p.logger, msg)

	if !msg.ackCalled.Load() {
		t.Error("msg.Ack() should be called to drop a poison-pill task")
	}
	if msg.nakCalled.Load() {
		t.Error("msg.Nak() should not be called for an undecodable task")
	}
}

func TestPoolProcessAcksOnHandlerAck(t *testing.T) {
	p := NewPool(nil, 1, time.Second, func(context.Context, webhook.QueueTask) Result {
		return Result{Ack: true}
	}, nil)

	task := webhook.QueueTask{Kind: webhook.TaskKindCompute, TaskID: "t1"}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	msg := &mockJetStreamMsg{data: data}
	p.process(context.Background(), p.logger, msg)

	if !msg.ackCalled.Load() {
		t.Error("msg.Ack() should be called when the handler acks")
	}
}

func TestPoolProcessNaksWithDelayOnHandlerRetry(t *testing.T) {
	wantDelay := 30 * time.Second
	p := NewPool(nil, 1, time.Second, func(context.Context, webhook.QueueTask) Result {
		return Result{Ack: false, Delay: wantDelay}
	}, nil)

	task := webhook.QueueTask{Kind: webhook.TaskKindCompute, TaskID: "t2"}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	msg := &mockJetStreamMsg{data: data}
	p.process(context.Background(), p.logger, msg)

	if msg.ackCalled.Load() {
		t.Error("msg.Ack() should not be called when the handler requests a retry")
	}
	if !msg.nakCalled.Load() {
		t.Error("msg.NakWithDelay() should be called when the handler requests a retry")
	}
	if msg.nakDelay != wantDelay {
		t.Errorf("nak delay = %v, want %v", msg.nakDelay, wantDelay)
	}
}

func TestPoolProcessPropagatesAttemptCountFromMetadata(t *testing.T) {
	var gotAttempts int
	p := NewPool(nil, 1, time.Second, func(_ context.Context, task webhook.QueueTask) Result {
		gotAttempts = task.AttemptCount
		return Result{Ack: true}
	}, nil)

	task := webhook.QueueTask{Kind: webhook.TaskKindCompute, TaskID: "t3"}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	p.process(context.Background(), p.logger, &mockJetStreamMsg{data: data})

	if gotAttempts != 1 {
		t.Errorf("AttemptCount = %d, want 1 (from mock metadata.NumDelivered)", gotAttempts)
	}
}

func TestPoolHealthyReportsFalseBeforeAnyActivity(t *testing.T) {
	p := NewPool(nil, 1, time.Second, func(context.Context, webhook.QueueTask) Result {
		return Result{Ack: true}
	}, nil)

	if p.Healthy(time.Minute) {
		t.Error("Healthy() should be false before any worker activity has been recorded")
	}
}

func TestPoolHealthyReportsTrueShortlyAfterActivity(t *testing.T) {
	p := NewPool(nil, 1, time.Second, func(context.Context, webhook.QueueTask) Result {
		return Result{Ack: true}
	}, nil)
	p.lastActive.Store(time.Now().Unix())

	if !p.Healthy(time.Minute) {
		t.Error("Healthy() should be true shortly after recorded activity")
	}
}
