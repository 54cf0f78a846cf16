package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/simosh/storefront/internal/domain"
)

// selectOrders читает заказ вместе со строками корзины одним запросом.
const selectOrders = `
	SELECT o.id, o.token, o.status, o.first_name, o.last_name, o.phone, o.description, o.created_at,
	       COALESCE((
	           SELECT json_agg(json_build_object('productId', i.product_id, 'quantity', i.quantity) ORDER BY i.position)
	           FROM order_items i
	           WHERE i.order_id = o.id
	       ), '[]')
	FROM orders o`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-журнал заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create пишет заказ и его строки одним выражением, поэтому транзакция не нужна.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s := order.Submission
	products := make([]string, len(s.Items))
	quantities := make([]int32, len(s.Items))
	for i, item := range s.Items {
		products[i] = item.ProductID
		quantities[i] = int32(item.Quantity)
	}

	_, err := r.db.ExecContext(ctx, `
		WITH placed AS (
			INSERT INTO orders (id, token, status, first_name, last_name, phone, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		)
		INSERT INTO order_items (order_id, position, product_id, quantity)
		SELECT placed.id, line.position, line.product_id, line.quantity
		FROM placed,
		     unnest($9::text[], $10::int[]) WITH ORDINALITY AS line(product_id, quantity, position)
	`,
		order.ID, order.Token, string(s.Status), s.FirstName, s.LastName, s.Phone, s.Description, order.CreatedAt,
		products, quantities,
	)
	switch {
	case isUniqueViolation(err):
		return domain.ErrOrderAlreadyExists
	case err != nil:
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.one(ctx, selectOrders+` WHERE o.id = $1`, id)
}

func (r *orderRepository) GetByToken(ctx context.Context, token string) (domain.Order, error) {
	return r.one(ctx, selectOrders+` WHERE o.token = $1`, token)
}

func (r *orderRepository) one(ctx context.Context, query, arg string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListRecent отдаёт до limit последних заказов; limit<=0 означает 100.
func (r *orderRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, selectOrders+` ORDER BY o.created_at DESC, o.id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
		items  []byte
	)
	s := &o.Submission
	if err := row.Scan(&o.ID, &o.Token, &status, &s.FirstName, &s.LastName, &s.Phone, &s.Description, &o.CreatedAt, &items); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if len(s.Items) == 0 {
		s.Items = nil
	}
	s.Status = domain.OrderStatus(status)
	s.Token = o.Token
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.OrderRepository = (*orderRepository)(nil)
