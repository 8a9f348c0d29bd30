package repository

import (
	"context"
	"fmt"
	"sort"

	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/store"
)

// TreeIssueRepository reads issue reports at <root>/<collection>/<ownerId>/<issueId>.
type TreeIssueRepository struct {
	tree       store.Tree
	root       string
	collection string
}

func NewTreeIssueRepository(tree store.Tree, root, collection string) *TreeIssueRepository {
	return &TreeIssueRepository{tree: tree, root: root, collection: collection}
}

// ListIssues returns the owner's reports. Any undecodable report is an
// error: callers gating on issues must not silently drop one.
func (r *TreeIssueRepository) ListIssues(ctx context.Context, ownerID string) ([]model.IssueReport, error) {
	raw, err := r.tree.ReadSubtree(ctx, store.Join(r.root, r.collection, ownerID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	nodes, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("issues for %s: expected object, got %T", ownerID, raw)
	}

	out := make([]model.IssueReport, 0, len(nodes))
	for issueID, node := range nodes {
		var issue model.IssueReport
		if err := store.Decode(node, &issue); err != nil {
			return nil, fmt.Errorf("issue %s/%s: %w", ownerID, issueID, err)
		}
		issue.OwnerID = ownerID
		issue.IssueID = issueID
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueID < out[j].IssueID })
	return out, nil
}
