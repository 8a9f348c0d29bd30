package rabbit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/types"
)

// Connect dials the broker and opens one channel for consuming and one for
// publishing; amqp channels must not be shared between goroutines.
func Connect(ctx context.Context, url string, log logger.Logger) (conn *amqp091.Connection, consumeCh, publishCh *amqp091.Channel, err error) {
	conn, err = amqp091.Dial(url)
	if err != nil {
		log.Error(ctx, types.ActionRabbitMQConnectFailed, "failed to connect to RabbitMQ", err)
		return nil, nil, nil, fmt.Errorf("failed to dial: %w", err)
	}
	if consumeCh, err = conn.Channel(); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if publishCh, err = conn.Channel(); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}
	log.Info(ctx, types.ActionRabbitMQConnected, "connected to RabbitMQ")
	return conn, consumeCh, publishCh, nil
}

// SetupConsumers binds queue to the fanout exchange and hands every delivery
// to consumer until ctx is cancelled or the channel closes.
func SetupConsumers(ctx context.Context, ch *amqp091.Channel, consumer *TriggerConsumer, queue, exchange string, log logger.Logger) error {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp091.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		log.Error(ctx, types.ActionRabbitMQSetupFailed, "failed to declare exchange", err, "exchange", exchange)
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		log.Error(ctx, types.ActionRabbitMQSetupFailed, "failed to declare queue", err, "queue", queue)
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	// fanout ignores the routing key
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		log.Error(ctx, types.ActionRabbitMQSetupFailed, "failed to bind queue", err, "queue", q.Name, "exchange", exchange)
		return fmt.Errorf("failed to bind %s to %s: %w", q.Name, exchange, err)
	}

	// one pass at a time
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		log.Error(ctx, types.ActionRabbitMQSetupFailed, "failed to consume queue", err, "queue", q.Name)
		return fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				settle(ctx, m, consumer.Handle(ctx, m.Body), log)
			}
		}
	}()

	log.Info(ctx, types.ActionRabbitMQConsumeStarted, "subscribed to reconcile requests",
		"queue", q.Name, "exchange", exchange)
	return nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(ctx context.Context, m acknowledger, handleErr error, log logger.Logger) {
	var err error
	switch {
	case handleErr == nil:
		err = m.Ack(false)
	case errors.Is(handleErr, ErrBadMessage):
		err = m.Nack(false, false)
	default:
		err = m.Nack(false, true)
	}
	if err != nil {
		log.Error(ctx, types.ActionMessageFailed, "failed to settle delivery", err)
	}
}
