package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	_ Queue        = (*MemoryQueue)(nil)
	_ FlowProducer = (*MemoryFlowProducer)(nil)
)

type pendingJob struct {
	msg     Message
	readyAt time.Time
}

// MemoryQueue is an in-process Queue. It honors the delay and lifo options
// and assigns a random job id when jobId is unset. Workers read from it with
// Receive.
type MemoryQueue struct {
	name string

	mu      sync.Mutex
	pending []pendingJob
	closed  bool

	notify chan struct{}
	done   chan struct{}
}

func NewMemoryQueue(name string) *MemoryQueue {
	return &MemoryQueue{
		name:   name,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Add(ctx context.Context, name string, data []byte, opts Options) error {
	return q.AddBulk(ctx, []Job{{Name: name, Data: data, Options: opts}})
}

// AddBulk enqueues all jobs or none.
func (q *MemoryQueue) AddBulk(ctx context.Context, jobs []Job) error {
	msgs := make([]Message, len(jobs))
	for i, j := range jobs {
		msgs[i] = q.message(j.Name, j.Data, j.Options, "")
	}
	return q.enqueue(ctx, msgs)
}

func (q *MemoryQueue) message(name string, data []byte, opts Options, prefix string) Message {
	id := opts.JobID()
	if id == "" {
		id = uuid.NewString()
	}
	return Message{
		ID:      id,
		Queue:   q.name,
		Name:    name,
		Data:    append([]byte(nil), data...),
		Options: opts.Clone(),
		Prefix:  prefix,
	}
}

func (q *MemoryQueue) enqueue(ctx context.Context, msgs []Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	now := time.Now()
	for _, m := range msgs {
		p := pendingJob{msg: m, readyAt: now.Add(m.Options.Delay())}
		if lifo, _ := m.Options[OptLIFO].(bool); lifo {
			q.pending = append([]pendingJob{p}, q.pending...)
		} else {
			q.pending = append(q.pending, p)
		}
	}
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Receive blocks until a job is ready, ctx is done or the queue is closed.
// Jobs still pending when the queue closes and not yet ready are dropped.
func (q *MemoryQueue) Receive(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		msg, wait, ok, more := q.pop(time.Now())
		closed := q.closed
		q.mu.Unlock()

		if ok {
			if more {
				q.signal()
			}
			return msg, nil
		}
		if closed {
			return Message{}, ErrQueueClosed
		}

		var timer *time.Timer
		var timeout <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return Message{}, ctx.Err()
		case <-q.done:
		case <-q.notify:
		case <-timeout:
		}
		stopTimer(timer)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// pop removes the first ready job. When none is ready it returns how long
// until the earliest delayed job, or zero when the queue is empty.
func (q *MemoryQueue) pop(now time.Time) (msg Message, wait time.Duration, ok, more bool) {
	for i, p := range q.pending {
		if !p.readyAt.After(now) {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			for _, rest := range q.pending {
				if !rest.readyAt.After(now) {
					more = true
					break
				}
			}
			return p.msg, 0, true, more
		}
		if d := p.readyAt.Sub(now); wait == 0 || d < wait {
			wait = d
		}
	}
	return Message{}, wait, false, false
}

// Len returns the number of pending jobs, ready or delayed.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Jobs returns a snapshot of the pending jobs in delivery order.
func (q *MemoryQueue) Jobs() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.pending))
	for i, p := range q.pending {
		out[i] = p.msg
	}
	return out
}

// Close stops accepting jobs and wakes blocked receivers.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// MemoryFlowProducer writes job trees to queues of a registry. Children are
// enqueued before their parent, depth first. Flow prefixes are kept on
// MemoryQueue destinations and dropped elsewhere.
type MemoryFlowProducer struct {
	queues *Registry[Queue]
}

func NewMemoryFlowProducer(queues *Registry[Queue]) *MemoryFlowProducer {
	return &MemoryFlowProducer{queues: queues}
}

func (p *MemoryFlowProducer) Add(ctx context.Context, job FlowJob) error {
	return p.AddBulk(ctx, []FlowJob{job})
}

// AddBulk checks that every queue of every tree exists before writing.
func (p *MemoryFlowProducer) AddBulk(ctx context.Context, jobs []FlowJob) error {
	for _, j := range jobs {
		if err := p.check(j); err != nil {
			return err
		}
	}
	for _, j := range jobs {
		if err := p.add(ctx, j, j.Prefix); err != nil {
			return err
		}
	}
	return nil
}

func (p *MemoryFlowProducer) check(j FlowJob) error {
	if _, err := p.queues.Get(j.Queue); err != nil {
		return err
	}
	for _, c := range j.Children {
		if err := p.check(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *MemoryFlowProducer) add(ctx context.Context, j FlowJob, prefix string) error {
	if j.Prefix != "" {
		prefix = j.Prefix
	}
	for _, c := range j.Children {
		if err := p.add(ctx, c, prefix); err != nil {
			return err
		}
	}
	q, err := p.queues.Get(j.Queue)
	if err != nil {
		return err
	}
	if mq, ok := q.(*MemoryQueue); ok {
		return mq.enqueue(ctx, []Message{mq.message(j.Name, j.Data, j.Options, prefix)})
	}
	return q.Add(ctx, j.Name, j.Data, j.Options)
}
