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

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository returns a PostgreSQL backed OrderRepository.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) (int64, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode order")
	}

	query := `
		INSERT INTO orders (order_number, status, total, created_at, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		order.Number,
		string(order.Status),
		order.Total,
		order.CreatedAt,
		body,
	).Scan(&order.ID); err != nil {
		return 0, errors.Wrap(err, "failed to insert order")
	}
	return order.ID, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (models.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, body FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, ErrNotFound
	}
	return order, err
}

func (r *orderRepository) List(ctx context.Context, filter models.OrderFilter, offset, limit int) ([]models.Order, error) {
	offset, limit = clampPage(offset, limit)
	where, args := orderWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, body FROM orders%s ORDER BY id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *orderRepository) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	where, args := orderWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count orders")
	}
	return count, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete order %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`, number,
	).Scan(&exists)
	return exists, err
}

func orderWhere(filter models.OrderFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanOrder(scanner rowScanner) (models.Order, error) {
	var (
		id   int64
		body []byte
	)
	if err := scanner.Scan(&id, &body); err != nil {
		return models.Order{}, err
	}
	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return models.Order{}, errors.Wrapf(err, "failed to decode order %d", id)
	}
	order.ID = id
	return order, nil
}
