package service

import (
	"context"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/types"
)

type IssueRepository interface {
	ListIssues(ctx context.Context, ownerID string) ([]model.IssueReport, error)
}

// Gate vetoes otherwise-due transitions.
type Gate interface {
	HasUnresolvedIssue(ctx context.Context, ownerID, orderID string) bool
}

// IssueGate blocks a transition while the owner has an unresolved issue
// report for the order. A failed lookup counts as unresolved.
type IssueGate struct {
	issues IssueRepository
	log    logger.Logger
}

func NewIssueGate(issues IssueRepository, log logger.Logger) *IssueGate {
	return &IssueGate{issues: issues, log: log}
}

func (g *IssueGate) HasUnresolvedIssue(ctx context.Context, ownerID, orderID string) bool {
	issues, err := g.issues.ListIssues(ctx, ownerID)
	if err != nil {
		g.log.Error(ctx, types.ActionGateReadFailed, "issue lookup failed, withholding transition", err,
			"owner_id", ownerID, "order_id", orderID)
		return true
	}
	for _, issue := range issues {
		if issue.OrderID == orderID && !issue.Resolved {
			return true
		}
	}
	return false
}
