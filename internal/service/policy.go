package service

import (
	"strings"
	"time"

	"order-lifecycle-reconciler/internal/model"
)

type DecisionKind int

const (
	NotApplicable DecisionKind = iota
	Pending
	Due
)

func (k DecisionKind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Due:
		return "due"
	default:
		return "not_applicable"
	}
}

// Decision is the outcome of evaluating one order against the policy.
// Elapsed is the dwell so far; Remaining is only set for Pending.
type Decision struct {
	Kind      DecisionKind
	Elapsed   time.Duration
	Remaining time.Duration
}

// Policy decides whether an order has dwelt long enough in TriggerStatus.
type Policy struct {
	TriggerStatus string
	Dwell         time.Duration
}

// Evaluate is pure. A zero entered time means no matching event was found.
func (p Policy) Evaluate(currentStatus string, entered, now time.Time) Decision {
	if !MatchStatus(currentStatus, p.TriggerStatus) || entered.IsZero() {
		return Decision{Kind: NotApplicable}
	}
	elapsed := now.Sub(entered)
	if elapsed > p.Dwell {
		return Decision{Kind: Due, Elapsed: elapsed}
	}
	return Decision{Kind: Pending, Elapsed: elapsed, Remaining: p.Dwell - elapsed}
}

// MatchStatus compares statuses case-insensitively.
func MatchStatus(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// EntryTime is the earliest timestamp among events whose status matches.
func EntryTime(o *model.Order, status string) (time.Time, bool) {
	var earliest time.Time
	for _, ev := range o.StatusUpdates {
		if !MatchStatus(ev.Status, status) {
			continue
		}
		t := ev.Time()
		if t.IsZero() {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest, !earliest.IsZero()
}

// latestEntry is the most recent timestamp among matching events.
func latestEntry(o *model.Order, status string) time.Time {
	var latest time.Time
	for _, ev := range o.StatusUpdates {
		if MatchStatus(ev.Status, status) && ev.Time().After(latest) {
			latest = ev.Time()
		}
	}
	return latest
}

// interruptedCompletion reports whether a previous pass already appended the
// terminal auto event (at or after the latest source-status event) but never
// got to rewrite the top-level status.
func interruptedCompletion(o *model.Order, source, terminal string) bool {
	since := latestEntry(o, source)
	for _, ev := range o.StatusUpdates {
		if ev.IsAuto() && MatchStatus(ev.Status, terminal) && !ev.Time().Before(since) {
			return true
		}
	}
	return false
}

type assessment struct {
	matches   bool
	resumable bool
	hasEntry  bool
	decision  Decision
}

// assess is shared by the reconciler and the statistics aggregator so both
// report the same view of an order.
func assess(o *model.Order, target, terminal string, dwell time.Duration, now time.Time) assessment {
	if !MatchStatus(o.Status, target) {
		return assessment{}
	}
	a := assessment{matches: true}
	if interruptedCompletion(o, target, terminal) {
		a.resumable = true
		return a
	}
	entered, ok := EntryTime(o, target)
	a.hasEntry = ok
	a.decision = Policy{TriggerStatus: target, Dwell: dwell}.Evaluate(o.Status, entered, now)
	return a
}
