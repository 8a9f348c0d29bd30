package service

import (
	"context"
	"errors"
	"time"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/types"
)

// RunRecorder persists a summary of every pass.
type RunRecorder interface {
	Record(ctx context.Context, rec model.RunRecord) error
	// Latest returns nil, nil when nothing has been recorded.
	Latest(ctx context.Context) (*model.RunRecord, error)
}

// OrderAssessment is a read-only view of where one order stands.
type OrderAssessment struct {
	Order     model.OrderRef
	Status    string
	Decision  DecisionKind
	Resumable bool
	EnteredAt time.Time
	Elapsed   time.Duration
	Remaining time.Duration
	Gated     bool
}

// LifecycleService is what the controller, scheduler, broker consumer and
// CLI talk to. It owns the process defaults and the run history.
type LifecycleService struct {
	reconciler *Reconciler
	stats      *StatisticsAggregator
	orders     OrderRepository
	gate       Gate
	history    RunRecorder
	log        logger.Logger
	clock      func() time.Time
}

func NewLifecycleService(reconciler *Reconciler, stats *StatisticsAggregator, orders OrderRepository, gate Gate, history RunRecorder, log logger.Logger) *LifecycleService {
	return &LifecycleService{
		reconciler: reconciler,
		stats:      stats,
		orders:     orders,
		gate:       gate,
		history:    history,
		log:        log,
		clock:      reconciler.clock,
	}
}

func (s *LifecycleService) Defaults() config.Lifecycle {
	return s.reconciler.Settings()
}

func (s *LifecycleService) Running() bool {
	return s.reconciler.Running()
}

// Trigger runs one pass with optional dwell and collection overrides. Zero
// values keep the defaults. The returned result may be non-nil together
// with an error when some collections could not be read.
func (s *LifecycleService) Trigger(ctx context.Context, trigger string, dwell time.Duration, collections []string) (*model.ReconcileResult, error) {
	settings := s.Defaults().WithOverrides(dwell, collections)

	result, err := s.reconciler.Reconcile(ctx, settings)
	if result == nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Warn(ctx, types.ActionReconcileRejected, "pass already running, trigger rejected", "trigger", trigger)
		}
		return nil, err
	}

	s.record(ctx, trigger, result, err)
	return result, err
}

func (s *LifecycleService) record(ctx context.Context, trigger string, result *model.ReconcileResult, runErr error) {
	if s.history == nil {
		return
	}
	rec := model.RunRecord{
		Trigger:            trigger,
		StartedAt:          result.StartedAt,
		FinishedAt:         result.FinishedAt,
		CompletedCount:     result.CompletedCount,
		CheckedCount:       result.CheckedCount,
		SkippedDueToIssues: result.SkippedDueToIssues,
		RepairedCount:      result.RepairedCount,
		FailedCount:        result.FailedCount,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// Best effort: the pass already ran.
	if err := s.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Error(ctx, types.ActionHistoryRecordFailed, "failed to record run", err, "trigger", trigger)
	}
}

func (s *LifecycleService) Statistics(ctx context.Context, dwell time.Duration, collections []string) (*model.Statistics, error) {
	return s.stats.Summarize(ctx, s.Defaults().WithOverrides(dwell, collections))
}

func (s *LifecycleService) LastRun(ctx context.Context) (*model.RunRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Latest(ctx)
}

// Assess evaluates a single order against the defaults without writing.
func (s *LifecycleService) Assess(ctx context.Context, ref model.OrderRef) (*OrderAssessment, error) {
	o, err := s.orders.FindOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	d := s.Defaults()
	a := assess(o, d.TargetStatus, d.TerminalStatus, d.Dwell, s.clock())

	out := &OrderAssessment{
		Order:     o.OrderRef,
		Status:    o.Status,
		Decision:  a.decision.Kind,
		Resumable: a.resumable,
		Elapsed:   a.decision.Elapsed,
		Remaining: a.decision.Remaining,
	}
	if entered, ok := EntryTime(o, d.TargetStatus); ok && a.matches {
		out.EnteredAt = entered
	}
	if a.decision.Kind == Due && s.gate != nil {
		out.Gated = s.gate.HasUnresolvedIssue(ctx, o.OwnerID, o.OrderID)
	}
	return out, nil
}

// Timeframe renders the default dwell ("14 days").
func (s *LifecycleService) Timeframe() string {
	return FormatDwell(s.Defaults().Dwell)
}
