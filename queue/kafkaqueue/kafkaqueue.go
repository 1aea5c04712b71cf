// Package kafkaqueue writes queue jobs to a Kafka topic and feeds fetched
// Kafka messages to a queue.Consumer.
package kafkaqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/bjaus/eventbus/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Header keys set on every written message.
const (
	HeaderJobName = "job-name"
	HeaderJobID   = "job-id"
)

// Writer writes messages to Kafka. *kafka.Writer implements it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Reader fetches and commits messages. *kafka.Reader implements it.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Queue writes jobs of one logical queue to a topic. The message key is the
// job id, so jobs sharing a jobId land on the same partition.
type Queue struct {
	name   string
	topic  string
	w      Writer
	logger *slog.Logger
}

type Option func(*Queue)

// WithTopic sets the topic on every message. Leave it unset when the
// writer has a fixed topic.
func WithTopic(topic string) Option {
	return func(q *Queue) {
		q.topic = topic
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func New(name string, w Writer, opts ...Option) *Queue {
	q := &Queue{name: name, w: w, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) Add(ctx context.Context, name string, data []byte, opts queue.Options) error {
	return q.AddBulk(ctx, []queue.Job{{Name: name, Data: data, Options: opts}})
}

// AddBulk writes all jobs with a single WriteMessages call.
func (q *Queue) AddBulk(ctx context.Context, jobs []queue.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(jobs))
	for _, j := range jobs {
		m, err := q.message(j)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	if err := q.w.WriteMessages(ctx, msgs...); err != nil {
		q.logger.ErrorContext(ctx, "kafka write failed",
			slog.String("queue", q.name),
			slog.String("topic", q.topic),
			slog.Int("count", len(msgs)),
			slog.Any("error", err))
		return err
	}
	return nil
}

func (q *Queue) message(j queue.Job) (kafka.Message, error) {
	id := j.Options.JobID()
	if id == "" {
		id = uuid.NewString()
	}
	body, err := queue.EncodeEnvelope(queue.Message{
		ID:      id,
		Queue:   q.name,
		Name:    j.Name,
		Data:    j.Data,
		Options: j.Options,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", j.Name, err)
	}
	return kafka.Message{
		Topic: q.topic,
		Key:   []byte(id),
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderJobName, Value: []byte(j.Name)},
			{Key: HeaderJobID, Value: []byte(id)},
		},
	}, nil
}

// Consume fetches messages from r and hands them to c until ctx is done.
// Handled messages are committed. Messages that can never succeed are
// logged and committed so they do not block the partition. Any other
// failure stops consumption without committing, so the message is fetched
// again on restart.
func Consume(ctx context.Context, c *queue.Consumer, r Reader, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if _, err := c.Process(ctx, m.Value); err != nil {
			if !queue.Permanent(err) {
				return fmt.Errorf("process offset %d: %w", m.Offset, err)
			}
			logger.ErrorContext(ctx, "dropping kafka message",
				slog.String("topic", m.Topic),
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.Any("error", err))
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}
