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

// StatisticsAggregator counts orders per lifecycle bucket without writing.
type StatisticsAggregator struct {
	orders OrderRepository
	gate   Gate
	log    logger.Logger
	clock  func() time.Time
}

func NewStatisticsAggregator(orders OrderRepository, gate Gate, log logger.Logger, clock func() time.Time) *StatisticsAggregator {
	if clock == nil {
		clock = time.Now
	}
	return &StatisticsAggregator{orders: orders, gate: gate, log: log, clock: clock}
}

// Summarize walks s.Collections. An unreadable collection is reported in its
// breakdown and in the returned error; the totals cover the readable ones.
func (a *StatisticsAggregator) Summarize(ctx context.Context, s config.Lifecycle) (*model.Statistics, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	stats := &model.Statistics{}
	var errs []error
	for _, collection := range s.Collections {
		cs := model.CollectionStatistics{Collection: collection}
		orders, err := a.orders.ListOrders(ctx, collection)
		if err != nil {
			cerr := &CollectionError{Collection: collection, Err: err}
			a.log.Error(ctx, types.ActionStatisticsFailed, "failed to read order collection", err,
				"collection", collection)
			cs.Error = cerr.Error()
			errs = append(errs, cerr)
			stats.AddCollection(cs)
			continue
		}

		now := a.clock()
		for _, o := range orders {
			cs.TotalOrders++
			as := assess(o, s.TargetStatus, s.TerminalStatus, s.Dwell, now)
			if !as.matches {
				continue
			}
			cs.MatchingStatusOrders++
			switch {
			case as.resumable:
				cs.DueCount++
			case as.decision.Kind == Pending:
				cs.PendingCount++
			case as.decision.Kind == Due:
				if a.gate != nil && a.gate.HasUnresolvedIssue(ctx, o.OwnerID, o.OrderID) {
					cs.GatedCount++
				} else {
					cs.DueCount++
				}
			}
		}
		stats.AddCollection(cs)
	}
	return stats, errors.Join(errs...)
}
