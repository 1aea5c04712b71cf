package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/bjaus/eventbus"
)

var (
	_ eventbus.Publisher = (*AtomicPublisher)(nil)
	_ eventbus.Publisher = (*BulkPublisher)(nil)
)

// write is a single job destined for a queue.
type write struct {
	queue string
	job   Job
}

// publisher holds what both publishing disciplines share.
type publisher struct {
	queues *Registry[Queue]
	flows  *FlowRegistry
	router *Router
	logger *slog.Logger
}

func newPublisher(queues *Registry[Queue], opts []Option) publisher {
	cfg := newConfig(opts)
	flows := cfg.flows
	if flows == nil {
		flows = NewFlowRegistry()
	}
	return publisher{queues: queues, flows: flows, router: cfg.router, logger: cfg.logger}
}

func asHandlable(v any) (Handlable, Spec, error) {
	h, ok := v.(Handlable)
	if !ok {
		return nil, Spec{}, fmt.Errorf("%w: %T", ErrNotHandlable, v)
	}
	spec := h.Spec()
	if err := spec.Validate(); err != nil {
		return nil, Spec{}, fmt.Errorf("%T: %w", v, err)
	}
	return h, spec, nil
}

// Publish writes a single handlable. Queue handlables are added to their
// queue, flow handlables are added as one job tree, and fanout handlables
// are copied to every destination of their route. All fanout copies are
// attempted; their failures are joined.
func (p *publisher) Publish(ctx context.Context, v any) error {
	h, spec, err := asHandlable(v)
	if err != nil {
		return err
	}

	if spec.Kind == KindFlow {
		producer, err := p.flows.Get(spec.FlowName)
		if err != nil {
			return err
		}
		job, err := p.flowJob(h)
		if err != nil {
			return err
		}
		return producer.Add(ctx, job)
	}

	writes, err := p.writes(h, spec)
	if err != nil {
		return err
	}
	var errs []error
	for _, w := range writes {
		if err := p.add(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *publisher) add(ctx context.Context, w write) error {
	q, err := p.queues.Get(w.queue)
	if err != nil {
		return err
	}
	if err := q.Add(ctx, w.job.Name, w.job.Data, w.job.Options); err != nil {
		p.logger.ErrorContext(ctx, "queue add failed",
			slog.String("queue", w.queue),
			slog.String("name", w.job.Name),
			slog.Any("error", err))
		return fmt.Errorf("add %s to %s: %w", w.job.Name, w.queue, err)
	}
	return nil
}

// writes returns the queue writes of a queue or fanout handlable.
func (p *publisher) writes(h Handlable, spec Spec) ([]write, error) {
	data, err := Encode(h)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", h, err)
	}

	if spec.Kind != KindFanout {
		return []write{{
			queue: spec.Queue,
			job:   Job{Name: spec.Name, Data: data, Options: spec.Options.Clone()},
		}}, nil
	}

	t := reflect.TypeOf(h)
	if p.router == nil {
		return nil, &RouteNotFoundError{Type: t.String()}
	}
	route, ok := p.router.Route(t)
	if !ok {
		return nil, &RouteNotFoundError{Type: t.String()}
	}
	out := make([]write, 0, len(route.Destinations))
	for _, d := range route.Destinations {
		out = append(out, write{
			queue: d.Name,
			job:   Job{Name: spec.Name, Data: data, Options: ResolveOptions(spec.Options, d)},
		})
	}
	return out, nil
}

// flowJob maps a handlable and its children to a job tree.
func (p *publisher) flowJob(h Handlable) (FlowJob, error) {
	spec := h.Spec()
	data, err := Encode(h)
	if err != nil {
		return FlowJob{}, fmt.Errorf("encode %T: %w", h, err)
	}
	job := FlowJob{
		Name:    spec.Name,
		Queue:   spec.Queue,
		Data:    data,
		Options: spec.Options.Clone(),
	}
	if spec.Kind != KindFlow {
		return job, nil
	}
	job.Prefix = spec.Prefix
	for _, child := range spec.Children {
		if err := validateChild(child); err != nil {
			return FlowJob{}, err
		}
		cj, err := p.flowJob(child)
		if err != nil {
			return FlowJob{}, err
		}
		job.Children = append(job.Children, cj)
	}
	return job, nil
}

// validateChild rejects flow children that cannot be placed in a job tree.
// Fanout children have no queue of their own.
func validateChild(child Handlable) error {
	if child == nil {
		return fmt.Errorf("%w: nil flow child", ErrInvalidSpec)
	}
	spec := child.Spec()
	if spec.Kind == KindFanout {
		return fmt.Errorf("%T: %w: fanout %q cannot be a flow child", child, ErrInvalidSpec, spec.Name)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%T: %w", child, err)
	}
	return nil
}

// AtomicPublisher writes every handlable, and every fanout copy, with its
// own queue call. One failed write does not stop the others; failures are
// joined into the returned error.
type AtomicPublisher struct {
	publisher
}

// NewAtomicPublisher creates an AtomicPublisher writing to queues. Use
// WithRouter for fanout handlables and WithFlows for flows.
func NewAtomicPublisher(queues *Registry[Queue], opts ...Option) *AtomicPublisher {
	return &AtomicPublisher{publisher: newPublisher(queues, opts)}
}

// PublishAll publishes each handlable in order.
func (p *AtomicPublisher) PublishAll(ctx context.Context, vs []any) error {
	var errs []error
	for _, v := range vs {
		if err := p.Publish(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BulkPublisher batches writes: PublishAll makes one AddBulk call per
// destination queue and one per flow producer. A failed batch fails every
// job in it. Queue options that only apply to single adds may be ignored by
// the transport's bulk call.
type BulkPublisher struct {
	publisher
}

// NewBulkPublisher creates a BulkPublisher writing to queues.
func NewBulkPublisher(queues *Registry[Queue], opts ...Option) *BulkPublisher {
	return &BulkPublisher{publisher: newPublisher(queues, opts)}
}

type queueBatch struct {
	queue Queue
	jobs  []Job
}

type flowBatch struct {
	name     string
	producer FlowProducer
	jobs     []FlowJob
}

// PublishAll groups the writes of vs by destination, keeping first-seen
// group order and relative order inside each group. Every handlable is
// mapped before anything is written, so an invalid handlable, a missing
// route or an unknown queue fails the whole call without side effects.
func (p *BulkPublisher) PublishAll(ctx context.Context, vs []any) error {
	var (
		queueOrder []string
		queues     = make(map[string]*queueBatch)
		flowOrder  []string
		flows      = make(map[string]*flowBatch)
	)

	for _, v := range vs {
		h, spec, err := asHandlable(v)
		if err != nil {
			return err
		}

		if spec.Kind == KindFlow {
			b, ok := flows[spec.FlowName]
			if !ok {
				producer, err := p.flows.Get(spec.FlowName)
				if err != nil {
					return err
				}
				b = &flowBatch{name: spec.FlowName, producer: producer}
				flows[spec.FlowName] = b
				flowOrder = append(flowOrder, spec.FlowName)
			}
			job, err := p.flowJob(h)
			if err != nil {
				return err
			}
			b.jobs = append(b.jobs, job)
			continue
		}

		writes, err := p.writes(h, spec)
		if err != nil {
			return err
		}
		for _, w := range writes {
			b, ok := queues[w.queue]
			if !ok {
				q, err := p.queues.Get(w.queue)
				if err != nil {
					return err
				}
				b = &queueBatch{queue: q}
				queues[w.queue] = b
				queueOrder = append(queueOrder, w.queue)
			}
			b.jobs = append(b.jobs, w.job)
		}
	}

	var errs []error
	for _, name := range queueOrder {
		b := queues[name]
		if err := b.queue.AddBulk(ctx, b.jobs); err != nil {
			p.logger.ErrorContext(ctx, "queue bulk add failed",
				slog.String("queue", name),
				slog.Int("jobs", len(b.jobs)),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("bulk add %d jobs to %s: %w", len(b.jobs), name, err))
		}
	}
	for _, name := range flowOrder {
		b := flows[name]
		if err := b.producer.AddBulk(ctx, b.jobs); err != nil {
			p.logger.ErrorContext(ctx, "flow bulk add failed",
				slog.String("flow", name),
				slog.Int("jobs", len(b.jobs)),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("bulk add %d flows: %w", len(b.jobs), err))
		}
	}
	return errors.Join(errs...)
}
