// Package scheduler triggers reconciliation passes on a fixed cadence.
package scheduler

import (
	"context"
	"time"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/types"
)

type RunFunc func(ctx context.Context) error

// Scheduler calls run once after initialDelay and then every interval until
// the context is cancelled. Ticks never overlap: a slow run delays the next.
type Scheduler struct {
	interval     time.Duration
	initialDelay time.Duration
	run          RunFunc
	log          logger.Logger
}

func New(interval, initialDelay time.Duration, run RunFunc, log logger.Logger) *Scheduler {
	return &Scheduler{interval: interval, initialDelay: initialDelay, run: run, log: log}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info(ctx, types.ActionSchedulerStarted, "scheduler started",
		"interval", s.interval.String(), "initial_delay", s.initialDelay.String())
	defer s.log.Info(context.WithoutCancel(ctx), types.ActionSchedulerStopped, "scheduler stopped")

	initial := time.NewTimer(s.initialDelay)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		return
	case <-initial.C:
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.log.Debug(ctx, types.ActionSchedulerTick, "scheduled pass starting")
	if err := s.run(ctx); err != nil {
		s.log.Error(ctx, types.ActionSchedulerTick, "scheduled pass failed", err)
	}
}
