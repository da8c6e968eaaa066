package repository

import (
	"context"
	"errors"

	"github.com/stanstork/bulkgen/internal/models"
)

// ErrNotFound is returned when a record lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSKU is returned when a product is created with a SKU already in use.
var ErrDuplicateSKU = errors.New("duplicate sku")

type OrderRepository interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, order *models.Order) (int64, error)
	Get(ctx context.Context, id int64) (models.Order, error)
	// List returns orders in ascending id order.
	List(ctx context.Context, filter models.OrderFilter, offset, limit int) ([]models.Order, error)
	Count(ctx context.Context, filter models.OrderFilter) (int, error)
	Delete(ctx context.Context, id int64) error
	ExistsByNumber(ctx context.Context, number string) (bool, error)
}

type ProductRepository interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, product *models.Product) (int64, error)
	Get(ctx context.Context, id int64) (models.Product, error)
	// List returns top-level products (no variations) in ascending id order,
	// with VariationIDs populated for variable products.
	List(ctx context.Context, filter models.ProductFilter, offset, limit int) ([]models.Product, error)
	Count(ctx context.Context, filter models.ProductFilter) (int, error)
	Variations(ctx context.Context, parentID int64) ([]models.Product, error)
	Delete(ctx context.Context, id int64) error
	SKUExists(ctx context.Context, sku string) (bool, error)
	ExistsByMeta(ctx context.Context, key, value string) (bool, error)
	// Purchasable returns published simple products and variations with a positive price.
	Purchasable(ctx context.Context) ([]models.Product, error)
	Categories(ctx context.Context) ([]string, error)
	EnsureCategories(ctx context.Context, names []string) error
}

// RecordStore bundles the repositories the batch executor works against.
type RecordStore struct {
	Orders   OrderRepository
	Products ProductRepository
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	return offset, limit
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
