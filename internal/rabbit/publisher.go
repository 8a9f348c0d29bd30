package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/types"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher fans transition events out on the status exchange.
type Publisher struct {
	ch       channel
	exchange string
	log      logger.Logger
}

// NewPublisher declares the fanout exchange on ch.
func NewPublisher(ch *amqp091.Channel, exchange string, log logger.Logger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange, log: log}, nil
}

func (p *Publisher) PublishTransition(ctx context.Context, ev model.TransitionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		"",    // fanout
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.EventID,
			Type:         ev.Kind,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish transition: %w", err)
	}

	p.log.Debug(ctx, types.ActionTransitionPublished, "transition published",
		"kind", ev.Kind, "owner_id", ev.OwnerID, "order_id", ev.OrderID)
	return nil
}
