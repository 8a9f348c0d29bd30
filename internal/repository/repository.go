package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/store"
	"order-lifecycle-reconciler/internal/types"
)

var ErrNotFound = errors.New("order not found")

// TreeOrderRepository reads and writes orders laid out as
// <root>/<collection>/<ownerId>/<orderId>.
type TreeOrderRepository struct {
	tree store.Tree
	root string
	log  logger.Logger
}

func NewTreeOrderRepository(tree store.Tree, root string, log logger.Logger) *TreeOrderRepository {
	return &TreeOrderRepository{tree: tree, root: root, log: log}
}

func (r *TreeOrderRepository) orderPath(ref model.OrderRef, rest ...string) string {
	return store.Join(append([]string{r.root, ref.Collection, ref.OwnerID, ref.OrderID}, rest...)...)
}

// ListOrders returns every order of a collection sorted by owner then order.
// Nodes that cannot be decoded are logged and left out.
func (r *TreeOrderRepository) ListOrders(ctx context.Context, collection string) ([]*model.Order, error) {
	raw, err := r.tree.ReadSubtree(ctx, store.Join(r.root, collection))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	owners, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("collection %s: expected object, got %T", collection, raw)
	}

	var out []*model.Order
	for ownerID, ownerNode := range owners {
		orders, ok := ownerNode.(map[string]any)
		if !ok {
			r.log.Warn(ctx, types.ActionOrderMalformed, "owner node is not an object",
				"collection", collection, "owner_id", ownerID)
			continue
		}
		for orderID, orderNode := range orders {
			var o model.Order
			if err := store.Decode(orderNode, &o); err != nil {
				r.log.Warn(ctx, types.ActionOrderMalformed, "skipping undecodable order",
					"collection", collection, "owner_id", ownerID, "order_id", orderID, "error", err.Error())
				continue
			}
			o.OrderRef = model.OrderRef{Collection: collection, OwnerID: ownerID, OrderID: orderID}
			out = append(out, &o)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out, nil
}

func (r *TreeOrderRepository) FindOrder(ctx context.Context, ref model.OrderRef) (*model.Order, error) {
	raw, err := r.tree.ReadSubtree(ctx, r.orderPath(ref))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var o model.Order
	if err := store.Decode(raw, &o); err != nil {
		return nil, err
	}
	o.OrderRef = ref
	return &o, nil
}

func (r *TreeOrderRepository) AppendStatusEvent(ctx context.Context, ref model.OrderRef, eventID string, ev model.StatusEvent) error {
	return r.tree.WriteAtPath(ctx, r.orderPath(ref, "statusUpdates", eventID), ev)
}

func (r *TreeOrderRepository) SetStatus(ctx context.Context, ref model.OrderRef, status string) error {
	return r.tree.WriteAtPath(ctx, r.orderPath(ref, "status"), status)
}
