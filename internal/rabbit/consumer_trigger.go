package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/dto"
	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/service"
	"order-lifecycle-reconciler/internal/types"
)

// ErrBadMessage marks deliveries that can never succeed and must not be requeued.
var ErrBadMessage = errors.New("malformed reconcile message")

type Triggerer interface {
	Trigger(ctx context.Context, trigger string, dwell time.Duration, collections []string) (*model.ReconcileResult, error)
}

// TriggerConsumer runs a reconciliation pass for each message on the
// reconcile queue.
type TriggerConsumer struct {
	Service Triggerer
	log     logger.Logger
}

func NewTriggerConsumer(s Triggerer, log logger.Logger) *TriggerConsumer {
	return &TriggerConsumer{Service: s, log: log}
}

func (c *TriggerConsumer) Handle(ctx context.Context, body []byte) error {
	var msg dto.TriggerMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &msg); err != nil {
			c.log.Error(ctx, types.ActionMessageFailed, "failed to parse reconcile message", err)
			return fmt.Errorf("%w: %w", ErrBadMessage, err)
		}
	}

	var dwell time.Duration
	if msg.Message.Dwell != "" {
		d, err := config.ParseDuration(msg.Message.Dwell)
		if err != nil || d <= 0 {
			c.log.Warn(ctx, types.ActionMessageFailed, "invalid dwell override in reconcile message",
				"dwell", msg.Message.Dwell, "correlation_id", msg.CorrelationID)
			return fmt.Errorf("%w: dwell %q", ErrBadMessage, msg.Message.Dwell)
		}
		dwell = d
	}

	c.log.Info(ctx, types.ActionMessageReceived, "reconcile requested via broker",
		"correlation_id", msg.CorrelationID, "requested_by", msg.Message.RequestedBy)

	res, err := c.Service.Trigger(ctx, model.TriggerBroker, dwell, msg.Message.Collections)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		// The running pass covers this request.
		return nil
	case errors.Is(err, config.ErrInvalidSettings):
		return fmt.Errorf("%w: %w", ErrBadMessage, err)
	case err != nil && res == nil:
		c.log.Error(ctx, types.ActionMessageFailed, "reconcile pass failed", err,
			"correlation_id", msg.CorrelationID)
		return err
	case err != nil:
		c.log.Warn(ctx, types.ActionMessageFailed, "reconcile pass finished with collection errors",
			"correlation_id", msg.CorrelationID, "error", err.Error())
	}
	return nil
}
