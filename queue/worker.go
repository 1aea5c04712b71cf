package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Worker pulls jobs from a MemoryQueue and hands them to a Consumer. A
// failing job is retried in place with the worker's backoff policy until it
// has used the attempts in its options. Wiring errors are not retried.
type Worker struct {
	source   *MemoryQueue
	consumer *Consumer
	registry *Registry[*Worker]

	newBackOff  func() backoff.BackOff
	concurrency int
	logger      *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64

	onFailed func(ctx context.Context, msg Message, err error)
}

// NewWorker creates a worker for q. When WithWorkers is given the worker
// registers itself there on Run, so deliveries can reach it.
func NewWorker(q *MemoryQueue, c *Consumer, opts ...Option) *Worker {
	cfg := newConfig(opts)
	return &Worker{
		source:      q,
		consumer:    c,
		registry:    cfg.workers,
		newBackOff:  cfg.newBackOff,
		concurrency: cfg.concurrency,
		logger:      cfg.logger.With(slog.String("queue", q.Name())),
	}
}

// Name returns the name of the queue the worker reads.
func (w *Worker) Name() string { return w.source.Name() }

// OnFailed sets a callback for jobs that failed every attempt.
func (w *Worker) OnFailed(fn func(ctx context.Context, msg Message, err error)) {
	w.onFailed = fn
}

// Processed returns the number of jobs that completed successfully.
func (w *Worker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of jobs that failed every attempt.
func (w *Worker) Failed() int64 { return w.failed.Load() }

// Run processes jobs until ctx is done or the queue is closed. It returns
// nil in both cases.
func (w *Worker) Run(ctx context.Context) error {
	if w.registry != nil {
		w.registry.Add(w)
		defer w.registry.Remove(w.Name())
	}

	w.logger.InfoContext(ctx, "worker started", slog.Int("concurrency", w.concurrency))
	defer w.logger.InfoContext(ctx, "worker stopped")

	var wg sync.WaitGroup
	for range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for {
		msg, err := w.source.Receive(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "receive failed", slog.Any("error", err))
			}
			return
		}
		w.process(ctx, msg)
	}
}

// process runs one job through the consumer with retries.
func (w *Worker) process(ctx context.Context, msg Message) {
	attempts := msg.Options.Attempts()
	policy := backoff.WithContext(
		backoff.WithMaxRetries(w.newBackOff(), uint64(attempts-1)),
		ctx,
	)

	start := time.Now()
	operation := func() error {
		msg.Attempt++
		_, err := w.consumer.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		if Permanent(err) {
			return backoff.Permanent(err)
		}
		w.logger.WarnContext(ctx, "job attempt failed",
			slog.String("id", msg.ID),
			slog.String("name", msg.Name),
			slog.Int("attempt", msg.Attempt),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		w.failed.Add(1)
		w.logger.ErrorContext(ctx, "job failed",
			slog.String("id", msg.ID),
			slog.String("name", msg.Name),
			slog.Int("attempt", msg.Attempt),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		if w.onFailed != nil {
			w.onFailed(ctx, msg, err)
		}
		return
	}

	w.processed.Add(1)
	w.logger.DebugContext(ctx, "job completed",
		slog.String("id", msg.ID),
		slog.String("name", msg.Name),
		slog.Duration("duration", time.Since(start)))
}
