// models.go
package model

import "time"

// OrderRef addresses one order in the tree.
type OrderRef struct {
	Collection string `json:"collection"`
	OwnerID    string `json:"ownerId"`
	OrderID    string `json:"orderId"`
}

type Order struct {
	OrderRef      `bson:"-"`
	Status        string                 `bson:"status" json:"status"`
	StatusUpdates map[string]StatusEvent `bson:"statusUpdates,omitempty" json:"statusUpdates,omitempty"`
}

// StatusEvent is one entry of the append-only statusUpdates log.
type StatusEvent struct {
	Status    string `bson:"status" json:"status"`
	Timestamp int64  `bson:"timestamp" json:"timestamp"` // ms since epoch
	Message   string `bson:"message,omitempty" json:"message,omitempty"`
	Location  string `bson:"location,omitempty" json:"location,omitempty"`
	AddedBy   string `bson:"addedBy,omitempty" json:"addedBy,omitempty"`
	AddedByID string `bson:"addedById,omitempty" json:"addedById,omitempty"`
	CreatedAt string `bson:"createdAt,omitempty" json:"createdAt,omitempty"`

	IsAutoConfirmed    bool `bson:"isAutoConfirmed,omitempty" json:"isAutoConfirmed,omitempty"`
	IsAutoCompleted    bool `bson:"isAutoCompleted,omitempty" json:"isAutoCompleted,omitempty"`
	IsMonitoringUpdate bool `bson:"isMonitoringUpdate,omitempty" json:"isMonitoringUpdate,omitempty"`

	MinutesSinceStatus int64 `bson:"minutesSinceStatus,omitempty" json:"minutesSinceStatus,omitempty"`
	DaysSinceStatus    int64 `bson:"daysSinceStatus,omitempty" json:"daysSinceStatus,omitempty"`
}

// Time converts the millisecond timestamp; zero when unset.
func (e StatusEvent) Time() time.Time {
	if e.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.Timestamp)
}

// IsAuto reports whether the event was written by the reconciler itself.
func (e StatusEvent) IsAuto() bool {
	return e.IsAutoConfirmed || e.IsAutoCompleted
}

type IssueReport struct {
	OwnerID  string `bson:"-" json:"ownerId"`
	IssueID  string `bson:"-" json:"issueId"`
	OrderID  string `bson:"orderID" json:"orderID"`
	Resolved bool   `bson:"resolved" json:"resolved"`
}

// CollectionResult is the per-collection breakdown of one pass.
type CollectionResult struct {
	Collection         string `json:"collection"`
	CheckedCount       int    `json:"checkedCount"`
	MatchingCount      int    `json:"matchingCount"`
	PendingCount       int    `json:"pendingCount"`
	CompletedCount     int    `json:"completedCount"`
	SkippedDueToIssues int    `json:"skippedDueToIssues"`
	RepairedCount      int    `json:"repairedCount"`
	FailedCount        int    `json:"failedCount"`
	Error              string `json:"error,omitempty"`
}

type ReconcileResult struct {
	CompletedCount     int                `json:"completedCount"`
	CheckedCount       int                `json:"checkedCount"`
	SkippedDueToIssues int                `json:"skippedDueToIssues"`
	RepairedCount      int                `json:"repairedCount"`
	FailedCount        int                `json:"failedCount"`
	Collections        []CollectionResult `json:"collections"`
	StartedAt          time.Time          `json:"startedAt"`
	FinishedAt         time.Time          `json:"finishedAt"`
}

// AddCollection folds a collection breakdown into the totals.
func (r *ReconcileResult) AddCollection(c CollectionResult) {
	r.CompletedCount += c.CompletedCount
	r.CheckedCount += c.CheckedCount
	r.SkippedDueToIssues += c.SkippedDueToIssues
	r.RepairedCount += c.RepairedCount
	r.FailedCount += c.FailedCount
	r.Collections = append(r.Collections, c)
}

type CollectionStatistics struct {
	Collection           string `json:"collection"`
	TotalOrders          int    `json:"totalOrders"`
	MatchingStatusOrders int    `json:"matchingStatusOrders"`
	PendingCount         int    `json:"pendingCount"`
	DueCount             int    `json:"dueCount"`
	GatedCount           int    `json:"gatedCount"`
	Error                string `json:"error,omitempty"`
}

type Statistics struct {
	TotalOrders          int                    `json:"totalOrders"`
	MatchingStatusOrders int                    `json:"matchingStatusOrders"`
	PendingCount         int                    `json:"pendingCount"`
	DueCount             int                    `json:"dueCount"`
	GatedCount           int                    `json:"gatedCount"`
	Collections          []CollectionStatistics `json:"collections"`
}

func (s *Statistics) AddCollection(c CollectionStatistics) {
	s.TotalOrders += c.TotalOrders
	s.MatchingStatusOrders += c.MatchingStatusOrders
	s.PendingCount += c.PendingCount
	s.DueCount += c.DueCount
	s.GatedCount += c.GatedCount
	s.Collections = append(s.Collections, c)
}

// Transition kinds published on the status exchange.
const (
	TransitionCompleted = "auto_completed"
	TransitionWithheld  = "withheld"
)

type TransitionEvent struct {
	Kind       string    `json:"kind"`
	Collection string    `json:"collection"`
	OwnerID    string    `json:"ownerId"`
	OrderID    string    `json:"orderId"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	EventID    string    `json:"eventId"`
	Elapsed    string    `json:"elapsed"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Trigger sources recorded in run history.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerBroker    = "broker"
	TriggerCLI       = "cli"
)

type RunRecord struct {
	ID                 int64     `json:"id,omitempty"`
	Trigger            string    `json:"trigger"`
	StartedAt          time.Time `json:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt"`
	CompletedCount     int       `json:"completedCount"`
	CheckedCount       int       `json:"checkedCount"`
	SkippedDueToIssues int       `json:"skippedDueToIssues"`
	RepairedCount      int       `json:"repairedCount"`
	FailedCount        int       `json:"failedCount"`
	Error              string    `json:"error,omitempty"`
}
