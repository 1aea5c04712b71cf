package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bjaus/eventbus"
)

// Message is a job as delivered by a transport.
type Message struct {
	ID      string
	Queue   string
	Name    string
	Data    []byte
	Options Options

	// Prefix is the key prefix of a flow job.
	Prefix string

	// Token is the transport's lock or continuation token, if any.
	Token string

	// Attempt counts deliveries of this job, starting at 1.
	Attempt int
}

// Delivery is a handlable rebuilt from a Message plus what is only known at
// delivery time. It is the call context of every queue dispatch.
type Delivery struct {
	Message   Message
	Handlable Handlable

	// AssignedQueue is the queue a fanout copy was delivered to.
	AssignedQueue string

	// Prefix is the key prefix of a delivered flow job.
	Prefix string

	// Queue and Worker are looked up in the consumer's registries when
	// configured.
	Queue  Queue
	Worker *Worker
}

// DeliveryFrom returns the Delivery being handled under ctx.
func DeliveryFrom(ctx context.Context) (*Delivery, bool) {
	d, ok := eventbus.CallContext(ctx).(*Delivery)
	return d, ok
}

// Consumer turns delivered messages into handlables and dispatches them to
// exactly one handler through a Bus.
type Consumer struct {
	bus     *eventbus.Bus
	types   *TypeRegistry
	queues  *Registry[Queue]
	workers *Registry[*Worker]
	decoder *Decoder
	logger  *slog.Logger
}

// NewConsumer creates a Consumer resolving handlable types through types.
//
// Example:
//
//	types := queue.NewTypeRegistry()
//	if err := types.FromSignatures(reg.Signatures()); err != nil {
//	    return err
//	}
//	c := queue.NewConsumer(bus, types, queue.WithQueues(queues), queue.WithLogger(logger))
func NewConsumer(bus *eventbus.Bus, types *TypeRegistry, opts ...Option) *Consumer {
	cfg := newConfig(opts)
	decoder := cfg.decoder
	if decoder == nil {
		decoder = NewDecoder()
	}
	return &Consumer{
		bus:     bus,
		types:   types,
		queues:  cfg.queues,
		workers: cfg.workers,
		decoder: decoder,
		logger:  cfg.logger,
	}
}

// Map rebuilds the handlable of msg and fills the delivery-time fields.
func (c *Consumer) Map(msg Message) (*Delivery, error) {
	t, err := c.types.Lookup(msg.Queue, msg.Name)
	if err != nil {
		return nil, err
	}
	h, err := Decode(t, msg.Data)
	if err != nil {
		return nil, err
	}

	d := &Delivery{Message: msg, Handlable: h}
	switch h.Spec().Kind {
	case KindFanout:
		d.AssignedQueue = msg.Queue
	case KindFlow:
		d.Prefix = msg.Prefix
	}

	if c.queues != nil {
		if d.Queue, err = c.queues.Get(msg.Queue); err != nil {
			return nil, err
		}
	}
	if c.workers != nil {
		if d.Worker, err = c.workers.Get(msg.Queue); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Handle maps msg and dispatches it to its single handler. It returns the
// handler's value, or the structured dispatch error so the caller's retry
// policy can act on it.
func (c *Consumer) Handle(ctx context.Context, msg Message) (any, error) {
	d, err := c.Map(msg)
	if err != nil {
		c.logger.ErrorContext(ctx, "map message",
			slog.String("queue", msg.Queue),
			slog.String("name", msg.Name),
			slog.Any("error", err))
		return nil, err
	}

	res := c.bus.ConsumeByStrictlySingleHandler(ctx, d.Handlable,
		eventbus.WithRoutingMetadata(MetadataOf(d.Handlable)),
		eventbus.WithCallContext(d))
	return res.Value()
}

// Process decodes a raw envelope and handles the resulting message.
func (c *Consumer) Process(ctx context.Context, raw []byte) (any, error) {
	msg, err := c.decoder.Decode(raw)
	if err != nil {
		return nil, err
	}
	return c.Handle(ctx, msg)
}

// Permanent reports whether err comes from wiring rather than execution and
// will not succeed on retry.
func Permanent(err error) bool {
	switch {
	case errors.Is(err, eventbus.ErrHandlerNotFound),
		errors.Is(err, eventbus.ErrMultipleHandlersFound),
		errors.Is(err, ErrTypeNotFound),
		errors.Is(err, ErrEntityNotFound),
		errors.Is(err, ErrNotHandlable),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrInvalidEnvelope),
		errors.Is(err, ErrNoFormat):
		return true
	}
	return false
}
