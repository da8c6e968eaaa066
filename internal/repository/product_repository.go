package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/bulkgen/internal/models"
)

const uniqueViolation = "23505"

type productRepository struct {
	db *sql.DB
}

// NewProductRepository returns a PostgreSQL backed ProductRepository.
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) (int64, error) {
	product.VariationIDs = nil
	body, err := json.Marshal(product)
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode product")
	}

	query := `
		INSERT INTO products (parent_id, type, sku, status, price, categories, tags, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		product.ParentID,
		string(product.Type),
		product.SKU,
		productStatus(*product),
		product.Price(),
		pq.Array(nonNil(product.Categories)),
		pq.Array(nonNil(product.Tags)),
		body,
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrDuplicateSKU
		}
		return 0, errors.Wrap(err, "failed to insert product")
	}
	return product.ID, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (models.Product, error) {
	row := r.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, ErrNotFound
	}
	return product, err
}

const productSelect = `
	SELECT p.id, p.created_at, p.body,
	       ARRAY(SELECT c.id FROM products c WHERE c.parent_id = p.id ORDER BY c.id)
	FROM products p`

func (r *productRepository) List(ctx context.Context, filter models.ProductFilter, offset, limit int) ([]models.Product, error) {
	offset, limit = clampPage(offset, limit)
	where, args := productWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`%s%s ORDER BY p.id LIMIT $%d OFFSET $%d`, productSelect, where, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

func (r *productRepository) Count(ctx context.Context, filter models.ProductFilter) (int, error) {
	where, args := productWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count products")
	}
	return count, nil
}

func (r *productRepository) Variations(ctx context.Context, parentID int64) ([]models.Product, error) {
	return r.query(ctx, productSelect+` WHERE p.parent_id = $1 ORDER BY p.id`, parentID)
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete product %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *productRepository) SKUExists(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE sku = $1)`, sku).Scan(&exists)
	return exists, err
}

func (r *productRepository) ExistsByMeta(ctx context.Context, key, value string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE body->'meta'->>$1 = $2)`, key, value,
	).Scan(&exists)
	return exists, err
}

func (r *productRepository) Purchasable(ctx context.Context) ([]models.Product, error) {
	return r.query(ctx, productSelect+`
		WHERE p.status = 'publish' AND p.price > 0 AND p.type IN ('simple', 'variation')
		ORDER BY p.id`)
}

func (r *productRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM product_categories ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *productRepository) EnsureCategories(ctx context.Context, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO product_categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name,
		); err != nil {
			return errors.Wrapf(err, "failed to create category %q", name)
		}
	}
	return nil
}

func (r *productRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query products")
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func productWhere(filter models.ProductFilter) (string, []interface{}) {
	clauses := []string{"p.parent_id = 0"}
	var args []interface{}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		args = append(args, pq.Array(types))
		clauses = append(clauses, fmt.Sprintf("p.type = ANY($%d)", len(args)))
	}
	if len(filter.Categories) > 0 {
		args = append(args, pq.Array(filter.Categories))
		clauses = append(clauses, fmt.Sprintf("p.categories && $%d", len(args)))
	}
	if len(filter.Tags) > 0 {
		args = append(args, pq.Array(filter.Tags))
		clauses = append(clauses, fmt.Sprintf("p.tags && $%d", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanProduct(scanner rowScanner) (models.Product, error) {
	var (
		product    models.Product
		id         int64
		body       []byte
		variations pq.Int64Array
	)
	if err := scanner.Scan(&id, &product.CreatedAt, &body, &variations); err != nil {
		return models.Product{}, err
	}
	createdAt := product.CreatedAt
	if err := json.Unmarshal(body, &product); err != nil {
		return models.Product{}, errors.Wrapf(err, "failed to decode product %d", id)
	}
	product.ID = id
	product.CreatedAt = createdAt
	if product.Type == models.ProductVariable {
		product.VariationIDs = []int64(variations)
	}
	return product, nil
}

func productStatus(p models.Product) string {
	if p.Status == "" {
		return "publish"
	}
	return p.Status
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
