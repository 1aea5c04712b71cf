package queue

import (
	"context"
	"fmt"
	"sync"
)

// Job is one entry of a bulk queue write.
type Job struct {
	Name    string
	Data    []byte
	Options Options
}

// Queue writes jobs to a named destination.
type Queue interface {
	Name() string
	Add(ctx context.Context, name string, data []byte, opts Options) error
	AddBulk(ctx context.Context, jobs []Job) error
}

// FlowJob is a node of a job tree. Children complete before their parent.
type FlowJob struct {
	Name     string
	Queue    string
	Prefix   string
	Data     []byte
	Options  Options
	Children []FlowJob
}

// FlowProducer writes job trees.
type FlowProducer interface {
	Add(ctx context.Context, job FlowJob) error
	AddBulk(ctx context.Context, jobs []FlowJob) error
}

// Named is implemented by registry entities.
type Named interface {
	Name() string
}

// Registry holds named entities in registration order. Adding an entity
// under an existing name replaces it in place.
//
// Registry is safe for concurrent use.
type Registry[E Named] struct {
	kind string

	mu       sync.RWMutex
	entities map[string]E
	order    []string
}

// NewRegistry creates a registry. Kind names the entity in errors.
func NewRegistry[E Named](kind string) *Registry[E] {
	return &Registry[E]{kind: kind, entities: make(map[string]E)}
}

// NewQueueRegistry creates a registry of queues.
func NewQueueRegistry(queues ...Queue) *Registry[Queue] {
	r := NewRegistry[Queue]("queue")
	for _, q := range queues {
		r.Add(q)
	}
	return r
}

// NewWorkerRegistry creates a registry of workers.
func NewWorkerRegistry() *Registry[*Worker] {
	return NewRegistry[*Worker]("worker")
}

func (r *Registry[E]) Add(e E) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Name()
	if _, ok := r.entities[name]; !ok {
		r.order = append(r.order, name)
	}
	r.entities[name] = e
}

// Get returns the entity registered under name or *EntityNotFoundError.
func (r *Registry[E]) Get(name string) (E, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	if !ok {
		var zero E
		return zero, &EntityNotFoundError{Kind: r.kind, Name: name}
	}
	return e, nil
}

func (r *Registry[E]) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[name]; !ok {
		return
	}
	delete(r.entities, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns every entity in registration order.
func (r *Registry[E]) All() []E {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]E, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entities[n])
	}
	return out
}

// FlowRegistry holds the default flow producer and named ones.
type FlowRegistry struct {
	mu    sync.RWMutex
	def   FlowProducer
	named map[string]FlowProducer
}

func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{named: make(map[string]FlowProducer)}
}

// SetDefault sets the producer used by flows without a flow name.
func (r *FlowRegistry) SetDefault(p FlowProducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = p
}

// AddNamed registers a producer under name.
func (r *FlowRegistry) AddNamed(name string, p FlowProducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = p
}

// Default returns the default producer.
func (r *FlowRegistry) Default() (FlowProducer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == nil {
		return nil, fmt.Errorf("%w: default", ErrFlowProducerNotRegistered)
	}
	return r.def, nil
}

// Named returns the producer registered under name.
func (r *FlowRegistry) Named(name string) (FlowProducer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.named[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFlowProducerNotRegistered, name)
	}
	return p, nil
}

// Get returns the named producer, or the default one for an empty name.
func (r *FlowRegistry) Get(name string) (FlowProducer, error) {
	if name == "" {
		return r.Default()
	}
	return r.Named(name)
}
