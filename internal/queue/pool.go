package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/webhook"
)

// Result is the outcome of a Handler invocation, telling the pool
// whether to acknowledge the task (removing it from the queue) or to
// NAK it with a delay, which JetStream redelivers at/after that delay
// without any worker goroutine parking in a sleep.
type Result struct {
	Ack   bool
	Delay time.Duration
}

// Handler processes one dequeued task.
type Handler func(ctx context.Context, task webhook.QueueTask) Result

// Pool runs a bounded set of worker goroutines pulling from a single
// durable JetStream consumer. Because every worker fetches one message
// at a time (prefetch=1) from the same consumer, dequeue order follows
// stream sequence order; for Compute with concurrency=1 this yields a
// strict FIFO.
type Pool struct {
	consumer    jetstream.Consumer
	concurrency int
	handler     Handler
	fetchWait   time.Duration
	logger      *slog.Logger

	lastActive atomic.Int64 // unix seconds of the most recent worker activity

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a worker Pool.
func NewPool(consumer jetstream.Consumer, concurrency int, fetchWait time.Duration, handler Handler, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if fetchWait <= 0 {
		fetchWait = 5 * time.Second
	}
	return &Pool{
		consumer:    consumer,
		concurrency: concurrency,
		handler:     handler,
		fetchWait:   fetchWait,
		logger:      logger.With("component", "worker-pool"),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.concurrency {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "concurrency", p.concurrency)
}

// Stop signals workers to stop and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Healthy reports whether at least one worker has been active within
// the last d duration, for the health surface.
func (p *Pool) Healthy(d time.Duration) bool {
	last := p.lastActive.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(last, 0)) < d
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		batch, err := p.consumer.Fetch(1, jetstream.FetchMaxWait(p.fetchWait))
		if err != nil {
			log.Warn("fetch failed", "error", err)
			continue
		}

		for msg := range batch.Messages() {
			p.lastActive.Store(time.Now().Unix())
			p.process(ctx, log, msg)
		}
		if err := batch.Error(); err != nil {
			log.Debug("fetch batch drained with error", "error", err)
		}
	}
}

func (p *Pool) process(ctx context.Context, log *slog.Logger, msg jetstream.Msg) {
	var task webhook.QueueTask
	if err := json.Unmarshal(msg.Data(), &task); err != nil {
		log.Error("failed to decode task, acking to avoid poison-pill redelivery", "error", err)
		_ = msg.Ack()
		return
	}

	if meta, err := msg.Metadata(); err == nil {
		task.AttemptCount = int(meta.NumDelivered)
	}

	result := p.handler(ctx, task)
	if result.Ack {
		if err := msg.Ack(); err != nil {
			log.Error("ack failed", "task_id", task.TaskID, "error", err)
		}
		return
	}

	if err := msg.NakWithDelay(result.Delay); err != nil {
		log.Error("nak failed", "task_id", task.TaskID, "error", err)
	}
}
