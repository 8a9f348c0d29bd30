package dto

import (
	"time"

	"order-lifecycle-reconciler/internal/model"
)

// TriggerQuery carries the optional per-run overrides of a manual trigger.
type TriggerQuery struct {
	Dwell       string `form:"dwell"`
	Collections string `form:"collections"`
}

// TriggerMessage is the envelope read from the reconcile queue. Every field
// of Message is optional.
type TriggerMessage struct {
	CorrelationID string `json:"correlation_id"`
	Exchange      string `json:"exchange"`
	RoutingKey    string `json:"routing_key"`
	Message       struct {
		Dwell       string   `json:"dwell"`
		Collections []string `json:"collections"`
		RequestedBy string   `json:"requestedBy"`
	} `json:"message"`
}

type TriggerResponse struct {
	Success            bool                     `json:"success"`
	Message            string                   `json:"message"`
	CompletedCount     int                      `json:"completedCount"`
	CheckedCount       int                      `json:"checkedCount"`
	SkippedDueToIssues int                      `json:"skippedDueToIssues"`
	RepairedCount      int                      `json:"repairedCount"`
	FailedCount        int                      `json:"failedCount"`
	Collections        []model.CollectionResult `json:"collections"`
	Timeframe          string                   `json:"timeframe"`
	Error              string                   `json:"error,omitempty"`
	Timestamp          time.Time                `json:"timestamp"`
}

func NewTriggerResponse(res *model.ReconcileResult, timeframe string, runErr error, now time.Time) TriggerResponse {
	out := TriggerResponse{
		Success:            runErr == nil,
		Message:            "Auto-confirm check completed",
		CompletedCount:     res.CompletedCount,
		CheckedCount:       res.CheckedCount,
		SkippedDueToIssues: res.SkippedDueToIssues,
		RepairedCount:      res.RepairedCount,
		FailedCount:        res.FailedCount,
		Collections:        res.Collections,
		Timeframe:          timeframe,
		Timestamp:          now.UTC(),
	}
	if runErr != nil {
		out.Message = "Auto-confirm check completed with errors"
		out.Error = runErr.Error()
	}
	return out
}

type StatisticsResponse struct {
	Success    bool              `json:"success"`
	Statistics *model.Statistics `json:"statistics"`
	Timeframe  string            `json:"timeframe"`
	Error      string            `json:"error,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

type AutoConfirmInfo struct {
	Enabled        bool     `json:"enabled"`
	Schedule       string   `json:"schedule"`
	Timeframe      string   `json:"timeframe"`
	SourceStatus   string   `json:"sourceStatus"`
	TerminalStatus string   `json:"terminalStatus"`
	Collections    []string `json:"collections"`
	Running        bool     `json:"running"`
}

type StatusResponse struct {
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	AutoConfirm AutoConfirmInfo   `json:"autoConfirm"`
	Statistics  *model.Statistics `json:"statistics,omitempty"`
	LastRun     *model.RunRecord  `json:"lastRun,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

type AssessmentResponse struct {
	model.OrderRef
	Status    string     `json:"status"`
	Decision  string     `json:"decision"`
	Resumable bool       `json:"resumable"`
	Gated     bool       `json:"gated"`
	EnteredAt *time.Time `json:"enteredAt,omitempty"`
	Elapsed   string     `json:"elapsed,omitempty"`
	Remaining string     `json:"remaining,omitempty"`
}
