// Package amqpqueue writes queue jobs to RabbitMQ and feeds RabbitMQ
// deliveries to a queue.Consumer.
//
// Jobs are published as JSON envelopes (see queue.EncodeEnvelope), so any
// queue.Decoder built with the default formats can read them back.
package amqpqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bjaus/eventbus/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Channel is the publishing side of an AMQP channel. *amqp.Channel
// implements it.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Queue publishes jobs for one logical queue. Writes are serialized because
// AMQP channels are not safe for concurrent publishing.
type Queue struct {
	name       string
	exchange   string
	routingKey string
	ch         Channel
	logger     *slog.Logger

	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithExchange publishes to exchange instead of the default exchange.
func WithExchange(exchange string) Option {
	return func(q *Queue) {
		q.exchange = exchange
	}
}

// WithRoutingKey sets the routing key. It defaults to the queue name.
func WithRoutingKey(key string) Option {
	return func(q *Queue) {
		q.routingKey = key
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a Queue named name publishing on ch.
func New(name string, ch Channel, opts ...Option) *Queue {
	q := &Queue{
		name:       name,
		routingKey: name,
		ch:         ch,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) Add(ctx context.Context, name string, data []byte, opts queue.Options) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.publish(ctx, name, data, opts)
}

// AddBulk publishes jobs in order and stops at the first failure. AMQP has
// no multi-message publish, so earlier jobs of a failed batch stay
// published.
func (q *Queue) AddBulk(ctx context.Context, jobs []queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range jobs {
		if err := q.publish(ctx, j.Name, j.Data, j.Options); err != nil {
			return fmt.Errorf("job %d of %d: %w", i+1, len(jobs), err)
		}
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, name string, data []byte, opts queue.Options) error {
	id := opts.JobID()
	if id == "" {
		id = uuid.NewString()
	}
	body, err := queue.EncodeEnvelope(queue.Message{
		ID:      id,
		Queue:   q.name,
		Name:    name,
		Data:    data,
		Options: opts,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Type:         name,
		Timestamp:    time.Now(),
		Priority:     priority(opts.Priority()),
		Body:         body,
	}
	if d := opts.Delay(); d > 0 {
		msg.Headers = amqp.Table{"x-delay": d.Milliseconds()}
	}

	if err := q.ch.PublishWithContext(ctx, q.exchange, q.routingKey, false, false, msg); err != nil {
		q.logger.ErrorContext(ctx, "amqp publish failed",
			slog.String("queue", q.name),
			slog.String("name", name),
			slog.String("id", id),
			slog.Any("error", err))
		return err
	}
	return nil
}

// priority clamps to the AMQP priority range.
func priority(p int) uint8 {
	return uint8(min(max(p, 0), 255))
}
