package executor

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/stanstork/bulkgen/internal/generator"
	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/repository"
)

const maxSKUAttempts = 10

func (e *Executor) generateOrders(ctx context.Context, size int, _ BatchContext) (Outcome, error) {
	op := models.OpGenerateOrders
	if err := e.ping(ctx, op); err != nil {
		return Outcome{}, err
	}
	// One catalog snapshot serves the whole batch.
	catalog, err := e.store.Products.Purchasable(ctx)
	if err != nil {
		return Outcome{}, &Error{Op: op, Err: errors.Wrap(err, "failed to load catalog")}
	}
	if len(catalog) == 0 {
		return Outcome{}, &Error{Op: op, Err: ErrEmptyCatalog}
	}

	params := generator.OrderParams{
		DateRangeDays: e.settings.DateRangeDays,
		MaxLineItems:  e.settings.ProductsPerOrder,
	}
	var out Outcome
	now := e.now()
	for i := 0; i < size; i++ {
		order := generator.BuildOrder(e.rand, now, catalog, params)
		if _, err := e.store.Orders.Create(ctx, &order); err != nil {
			out.Fail(fmt.Sprintf("order %d", i+1), err.Error())
			continue
		}
		out.Succeed()
	}
	return out, nil
}

func (e *Executor) generateProducts(ctx context.Context, size int, bc BatchContext) (Outcome, error) {
	op := models.OpGenerateProducts
	if err := e.ping(ctx, op); err != nil {
		return Outcome{}, err
	}
	categories, err := e.store.Products.Categories(ctx)
	if err != nil {
		return Outcome{}, &Error{Op: op, Err: errors.Wrap(err, "failed to load categories")}
	}

	params := generator.ProductParams{
		PriceMin:         e.settings.PriceMin,
		PriceMax:         e.settings.PriceMax,
		Categories:       categories,
		PlaceholderImage: e.settings.PlaceholderImage,
	}
	if bc.PriceMin > 0 && bc.PriceMax >= bc.PriceMin {
		params.PriceMin, params.PriceMax = bc.PriceMin, bc.PriceMax
	}

	var out Outcome
	for i := 0; i < size; i++ {
		product := generator.BuildProduct(e.rand, params)
		if err := e.createWithFreeSKU(ctx, &product); err != nil {
			out.Fail(fmt.Sprintf("product %d", i+1), err.Error())
			continue
		}
		out.Succeed()
	}
	return out, nil
}

// createWithFreeSKU saves product under the first candidate SKU not yet in
// use.
func (e *Executor) createWithFreeSKU(ctx context.Context, product *models.Product) error {
	base := product.SKU
	for attempt := 0; attempt < maxSKUAttempts; attempt++ {
		product.SKU = generator.SKUCandidate(base, attempt)
		exists, err := e.store.Products.SKUExists(ctx, product.SKU)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		_, err = e.store.Products.Create(ctx, product)
		if errors.Is(err, repository.ErrDuplicateSKU) {
			continue
		}
		return err
	}
	return errors.Errorf("no free sku after %d attempts for %s", maxSKUAttempts, base)
}
