package queue

import (
	"log/slog"

	"github.com/cenkalti/backoff/v4"
)

// Option configures publishers, consumers and workers. Each constructor
// reads the settings that apply to it and ignores the rest.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	router      *Router
	flows       *FlowRegistry
	queues      *Registry[Queue]
	workers     *Registry[*Worker]
	decoder     *Decoder
	newBackOff  func() backoff.BackOff
	concurrency int
}

func newConfig(opts []Option) config {
	c := config{
		logger:      slog.New(slog.DiscardHandler),
		newBackOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRouter sets the fanout router used by publishers.
func WithRouter(r *Router) Option {
	return func(c *config) {
		c.router = r
	}
}

// WithFlows sets the flow producers used by publishers.
func WithFlows(f *FlowRegistry) Option {
	return func(c *config) {
		c.flows = f
	}
}

// WithQueues sets the queue registry a consumer exposes in each Delivery.
func WithQueues(q *Registry[Queue]) Option {
	return func(c *config) {
		c.queues = q
	}
}

// WithWorkers sets the worker registry a consumer exposes in each Delivery.
// Workers register themselves in it when they start.
func WithWorkers(w *Registry[*Worker]) Option {
	return func(c *config) {
		c.workers = w
	}
}

// WithDecoder sets the envelope decoder used by Consumer.Process.
func WithDecoder(d *Decoder) Option {
	return func(c *config) {
		c.decoder = d
	}
}

// WithBackOff sets the retry policy factory of a worker. A new policy is
// created for every job.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *config) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

// WithConcurrency sets how many jobs a worker processes at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = max(n, 1)
	}
}
