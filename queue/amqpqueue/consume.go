package amqpqueue

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bjaus/eventbus/queue"
)

// Deliver hands one delivery to c and settles it. Successful deliveries are
// acked. Deliveries that can never succeed (see queue.Permanent) are nacked
// without requeue so a dead letter exchange can take them; other failures
// are requeued.
func Deliver(ctx context.Context, c *queue.Consumer, d amqp.Delivery, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	_, err := c.Process(ctx, d.Body)
	if err == nil {
		return d.Ack(false)
	}

	requeue := !queue.Permanent(err)
	logger.ErrorContext(ctx, "amqp delivery failed",
		slog.String("id", d.MessageId),
		slog.String("routing_key", d.RoutingKey),
		slog.Bool("requeue", requeue),
		slog.Any("error", err))
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		logger.ErrorContext(ctx, "amqp nack failed", slog.Any("error", nackErr))
		return nackErr
	}
	return nil
}

// Consume delivers messages from deliveries until the channel closes or ctx
// is done.
func Consume(ctx context.Context, c *queue.Consumer, deliveries <-chan amqp.Delivery, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := Deliver(ctx, c, d, logger); err != nil {
				return err
			}
		}
	}
}
