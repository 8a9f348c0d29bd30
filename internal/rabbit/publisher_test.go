package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
)

type fakeChannel struct {
	exchange string
	msg      amqp091.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.msg = exchange, msg
	return f.err
}

func TestPublisher_PublishTransition(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "order_status_changed", log: logger.Nop()}

	ev := model.TransitionEvent{
		Kind:       model.TransitionCompleted,
		Collection: "transactions",
		OwnerID:    "u1",
		OrderID:    "o1",
		FromStatus: "delivered",
		ToStatus:   "completed",
		EventID:    "abc",
		OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.PublishTransition(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if ch.exchange != "order_status_changed" || ch.msg.MessageId != "abc" || ch.msg.DeliveryMode != amqp091.Persistent {
		t.Fatalf("publishing = %+v", ch.msg)
	}
	var got model.TransitionEvent
	if err := json.Unmarshal(ch.msg.Body, &got); err != nil {
		t.Fatal(err)
	}
	if got.OrderID != "o1" || got.ToStatus != "completed" {
		t.Fatalf("body = %+v", got)
	}
}

func TestPublisher_PropagatesError(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{err: errors.New("closed")}, exchange: "x", log: logger.Nop()}
	if err := p.PublishTransition(context.Background(), model.TransitionEvent{}); err == nil {
		t.Fatal("expected error")
	}
}
