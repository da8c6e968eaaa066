package executor

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stanstork/bulkgen/internal/models"
)

// deleteOrders deletes one page of orders starting at offset. A failed
// delete is skipped so the caller can step over it.
func (e *Executor) deleteOrders(ctx context.Context, size int, bc BatchContext) (Outcome, error) {
	op := models.OpDeleteOrders
	if err := e.ping(ctx, op); err != nil {
		return Outcome{}, err
	}
	orders, err := e.store.Orders.List(ctx, models.OrderFilter{}, bc.Offset, size)
	if err != nil {
		return Outcome{}, &Error{Op: op, Err: errors.Wrap(err, "failed to list orders")}
	}

	var out Outcome
	for _, o := range orders {
		id := strconv.FormatInt(o.ID, 10)
		if err := e.store.Orders.Delete(ctx, o.ID); err != nil {
			out.Skip(id, err.Error())
			continue
		}
		out.Succeed()
	}
	out.Done = len(orders) < size
	return out, nil
}

// deleteProducts deletes one page of top-level products. Variations go
// before their parent; a parent whose variations cannot all be removed is
// skipped.
func (e *Executor) deleteProducts(ctx context.Context, size int, bc BatchContext) (Outcome, error) {
	op := models.OpDeleteProducts
	if err := e.ping(ctx, op); err != nil {
		return Outcome{}, err
	}
	products, err := e.store.Products.List(ctx, models.ProductFilter{}, bc.Offset, size)
	if err != nil {
		return Outcome{}, &Error{Op: op, Err: errors.Wrap(err, "failed to list products")}
	}

	var out Outcome
	for _, p := range products {
		id := strconv.FormatInt(p.ID, 10)
		if reason := e.deleteVariations(ctx, p); reason != "" {
			out.Skip(id, reason)
			continue
		}
		if err := e.store.Products.Delete(ctx, p.ID); err != nil {
			out.Skip(id, err.Error())
			continue
		}
		out.Succeed()
	}
	out.Done = len(products) < size
	return out, nil
}

func (e *Executor) deleteVariations(ctx context.Context, p models.Product) string {
	if p.Type != models.ProductVariable {
		return ""
	}
	for _, vid := range p.VariationIDs {
		if err := e.store.Products.Delete(ctx, vid); err != nil {
			return "variation " + strconv.FormatInt(vid, 10) + ": " + err.Error()
		}
	}
	return ""
}
