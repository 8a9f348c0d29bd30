package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/types"
)

const (
	systemActor     = "System"
	systemActorID   = "auto-confirm-system"
	confirmLocation = "System Auto-Confirm"
	monitorLocation = "System Auto-Confirm Monitor"
	isoMillis       = "2006-01-02T15:04:05.000Z07:00"
)

type OrderRepository interface {
	ListOrders(ctx context.Context, collection string) ([]*model.Order, error)
	FindOrder(ctx context.Context, ref model.OrderRef) (*model.Order, error)
	AppendStatusEvent(ctx context.Context, ref model.OrderRef, eventID string, ev model.StatusEvent) error
	SetStatus(ctx context.Context, ref model.OrderRef, status string) error
}

type TransitionPublisher interface {
	PublishTransition(ctx context.Context, ev model.TransitionEvent) error
}

// Reconciler advances orders whose dwell in the source status has elapsed.
// Only one pass runs at a time; overlapping calls get ErrRunInProgress.
type Reconciler struct {
	orders    OrderRepository
	gate      Gate
	publisher TransitionPublisher
	settings  config.Lifecycle
	log       logger.Logger
	clock     func() time.Time
	newID     func() string

	running atomic.Bool
}

type Option func(*Reconciler)

func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(r *Reconciler) {
		if gen != nil {
			r.newID = gen
		}
	}
}

func WithPublisher(p TransitionPublisher) Option {
	return func(r *Reconciler) {
		r.publisher = p
	}
}

func NewReconciler(orders OrderRepository, gate Gate, settings config.Lifecycle, log logger.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		orders:   orders,
		gate:     gate,
		settings: settings,
		log:      log,
		clock:    time.Now,
		newID:    NewEventID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settings returns a copy of the construction-time defaults.
func (r *Reconciler) Settings() config.Lifecycle {
	return r.settings.WithOverrides(0, nil)
}

// Running reports whether a pass is in flight.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// Reconcile runs one full pass over s.Collections. A collection that cannot
// be read is skipped and reported in the returned error; the others are
// still processed. Per-order write failures only show up in FailedCount.
func (r *Reconciler) Reconcile(ctx context.Context, s config.Lifecycle) (*model.ReconcileResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.WithOverrides(0, nil)
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	result := &model.ReconcileResult{StartedAt: r.clock()}
	r.log.Info(ctx, types.ActionReconcileStarted, "checking orders for auto-completion",
		"source_status", s.TargetStatus,
		"terminal_status", s.TerminalStatus,
		"dwell", s.Dwell.String(),
		"collections", s.Collections,
	)

	var errs []error
	for _, collection := range s.Collections {
		cr, err := r.reconcileCollection(ctx, collection, s)
		if err != nil {
			cr.Error = err.Error()
			errs = append(errs, err)
		}
		result.AddCollection(cr)
	}
	result.FinishedAt = r.clock()

	r.log.Info(ctx, types.ActionReconcileCompleted, "auto-completion check finished",
		"completed", result.CompletedCount,
		"checked", result.CheckedCount,
		"skipped_due_to_issues", result.SkippedDueToIssues,
		"repaired", result.RepairedCount,
		"failed", result.FailedCount,
		"duration", result.FinishedAt.Sub(result.StartedAt).String(),
	)
	return result, errors.Join(errs...)
}

func (r *Reconciler) reconcileCollection(ctx context.Context, collection string, s config.Lifecycle) (model.CollectionResult, error) {
	cr := model.CollectionResult{Collection: collection}

	orders, err := r.orders.ListOrders(ctx, collection)
	if err != nil {
		r.log.Error(ctx, types.ActionCollectionReadFailed, "failed to read order collection", err,
			"collection", collection)
		return cr, &CollectionError{Collection: collection, Err: err}
	}

	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return cr, fmt.Errorf("collection %s: pass interrupted: %w", collection, err)
		}
		cr.CheckedCount++

		now := r.clock()
		a := assess(o, s.TargetStatus, s.TerminalStatus, s.Dwell, now)
		if !a.matches {
			continue
		}
		cr.MatchingCount++

		switch {
		case a.resumable:
			r.repair(ctx, o, s, &cr)
		case !a.hasEntry:
			r.log.Warn(ctx, types.ActionOrderMissingEntry, "order has no timestamped event for its status",
				"collection", collection, "owner_id", o.OwnerID, "order_id", o.OrderID, "status", o.Status)
		case a.decision.Kind == Pending:
			cr.PendingCount++
			r.log.Debug(ctx, types.ActionOrderPending, "order not yet due",
				"collection", collection, "owner_id", o.OwnerID, "order_id", o.OrderID,
				"elapsed", a.decision.Elapsed.String(), "remaining", a.decision.Remaining.String())
		case a.decision.Kind == Due:
			r.transition(ctx, o, s, a.decision, now, &cr)
		}
	}
	return cr, nil
}

func (r *Reconciler) transition(ctx context.Context, o *model.Order, s config.Lifecycle, d Decision, now time.Time, cr *model.CollectionResult) {
	logArgs := []any{"collection", o.Collection, "owner_id", o.OwnerID, "order_id", o.OrderID, "elapsed", d.Elapsed.String()}

	if r.gate.HasUnresolvedIssue(ctx, o.OwnerID, o.OrderID) {
		cr.SkippedDueToIssues++
		id := r.newID()
		msg := fmt.Sprintf("Auto-%s withheld: order has unresolved issue reports", s.TerminalStatus)
		ev := newSystemEvent(o.Status, monitorLocation, msg, now, d.Elapsed)
		ev.IsMonitoringUpdate = true
		if err := r.orders.AppendStatusEvent(ctx, o.OrderRef, id, ev); err != nil {
			cr.FailedCount++
			r.log.Error(ctx, types.ActionOrderWriteFailed, "failed to append monitoring event",
				fmt.Errorf("%w: %w", ErrStoreWrite, err), logArgs...)
			return
		}
		r.log.Info(ctx, types.ActionOrderWithheld, "transition withheld by unresolved issue", logArgs...)
		r.publish(ctx, model.TransitionWithheld, o, o.Status, id, d.Elapsed, now)
		return
	}

	id := r.newID()
	msg := fmt.Sprintf("Order automatically confirmed as %s after %s in %s status",
		s.TerminalStatus, FormatDwell(s.Dwell), s.TargetStatus)
	ev := newSystemEvent(s.TerminalStatus, confirmLocation, msg, now, d.Elapsed)
	if s.CompletionFlag == config.FlagAutoCompleted {
		ev.IsAutoCompleted = true
	} else {
		ev.IsAutoConfirmed = true
	}

	if err := r.orders.AppendStatusEvent(ctx, o.OrderRef, id, ev); err != nil {
		cr.FailedCount++
		r.log.Error(ctx, types.ActionOrderWriteFailed, "failed to append terminal event",
			fmt.Errorf("%w: %w", ErrStoreWrite, err), logArgs...)
		return
	}
	if err := r.orders.SetStatus(ctx, o.OrderRef, s.TerminalStatus); err != nil {
		cr.FailedCount++
		r.log.Error(ctx, types.ActionOrderWriteFailed, "terminal event written but status update failed; next pass repairs it",
			fmt.Errorf("%w: %w", ErrStoreWrite, err), logArgs...)
		return
	}

	cr.CompletedCount++
	r.log.Info(ctx, types.ActionOrderAutoCompleted, "order auto-completed", logArgs...)
	r.publish(ctx, model.TransitionCompleted, o, s.TerminalStatus, id, d.Elapsed, now)
}

func (r *Reconciler) repair(ctx context.Context, o *model.Order, s config.Lifecycle, cr *model.CollectionResult) {
	if err := r.orders.SetStatus(ctx, o.OrderRef, s.TerminalStatus); err != nil {
		cr.FailedCount++
		r.log.Error(ctx, types.ActionOrderWriteFailed, "failed to finish interrupted completion",
			fmt.Errorf("%w: %w", ErrStoreWrite, err),
			"collection", o.Collection, "owner_id", o.OwnerID, "order_id", o.OrderID)
		return
	}
	cr.RepairedCount++
	r.log.Info(ctx, types.ActionOrderRepaired, "finished interrupted completion",
		"collection", o.Collection, "owner_id", o.OwnerID, "order_id", o.OrderID)
}

func (r *Reconciler) publish(ctx context.Context, kind string, o *model.Order, to, eventID string, elapsed time.Duration, now time.Time) {
	if r.publisher == nil {
		return
	}
	ev := model.TransitionEvent{
		Kind:       kind,
		Collection: o.Collection,
		OwnerID:    o.OwnerID,
		OrderID:    o.OrderID,
		FromStatus: o.Status,
		ToStatus:   to,
		EventID:    eventID,
		Elapsed:    elapsed.Round(time.Second).String(),
		OccurredAt: now.UTC(),
	}
	if err := r.publisher.PublishTransition(ctx, ev); err != nil {
		r.log.Error(ctx, types.ActionRabbitMQPublishFailed, "failed to publish transition", err,
			"collection", o.Collection, "owner_id", o.OwnerID, "order_id", o.OrderID, "kind", kind)
	}
}

func newSystemEvent(status, location, message string, now time.Time, elapsed time.Duration) model.StatusEvent {
	return model.StatusEvent{
		Status:             status,
		Timestamp:          now.UnixMilli(),
		Message:            message,
		Location:           location,
		AddedBy:            systemActor,
		AddedByID:          systemActorID,
		CreatedAt:          now.UTC().Format(isoMillis),
		MinutesSinceStatus: int64(elapsed / time.Minute),
		DaysSinceStatus:    int64(math.Round(elapsed.Hours() / 24)),
	}
}

// FormatDwell renders a dwell threshold for humans ("14 days", "10 minutes").
func FormatDwell(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d > 0 && d%(24*time.Hour) == 0:
		return unit(int64(d/(24*time.Hour)), "day")
	case d > 0 && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d > 0 && d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}
