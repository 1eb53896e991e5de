package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const orderColumns = `o.id, o.user_id, o.status, o.total_amount, o.payment_method, o.payment_ref,
	o.tracking_number, o.cancel_reason, o.idempotency_key, o.created_at, o.updated_at,
	o.shipping_full_name, o.shipping_address_line1, o.shipping_city, o.shipping_postal_code,
	o.shipping_country, o.shipping_phone`

// itemsQuery resolves product name and seller through the join so that
// ownership always reflects the current catalog.
const itemsQuery = `
	SELECT oi.id, oi.order_id, oi.product_id, p.name AS product_name, p.seller_id,
	       oi.quantity, oi.price_at_order
	FROM order_items oi
	JOIN products p ON p.id = oi.product_id
	WHERE oi.order_id = ANY($1)
	ORDER BY oi.order_id, oi.id`

// queryer is satisfied by *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func getOrder(ctx context.Context, q queryer, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := q.GetContext(ctx, &order, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	orders := []models.Order{order}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func selectOrders(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.Order, error) {
	orders := []models.Order{}
	if err := q.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems attaches items to orders with a single query.
func loadItems(ctx context.Context, q queryer, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	var items []models.OrderItem
	if err := q.SelectContext(ctx, &items, itemsQuery, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "select order items")
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return nil
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order, err := getOrder(ctx, s.db, "SELECT "+orderColumns+" FROM orders o WHERE o.id = $1", id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	return order, nil
}

// GetOrderByIdempotencyKey returns nil when the user never used the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	if key == "" {
		return nil, nil
	}
	return getOrder(ctx, s.db,
		"SELECT "+orderColumns+" FROM orders o WHERE o.user_id = $1 AND o.idempotency_key = $2", userID, key)
}

// ListOrdersByUser retrieves orders for a user
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return selectOrders(ctx, s.db,
		"SELECT "+orderColumns+" FROM orders o WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC", userID)
}

func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders o"
	var args []interface{}
	if len(f.Statuses) > 0 {
		query += " WHERE o.status = ANY($1)"
		args = append(args, pq.Array(f.statusStrings()))
	}
	return selectOrders(ctx, s.db, query+" ORDER BY o.created_at DESC, o.id DESC", args...)
}

// sellerScope is the ownership predicate in SQL: some item of the order
// references a product currently owned by the seller.
const sellerScope = `EXISTS (
	SELECT 1 FROM order_items oi
	JOIN products p ON p.id = oi.product_id
	WHERE oi.order_id = o.id AND p.seller_id = $1)`

func sellerQuery(projection string, sellerID int64, f OrderFilter) (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM orders o WHERE %s", projection, sellerScope)
	args := []interface{}{sellerID}
	if len(f.Statuses) > 0 {
		query += " AND o.status = ANY($2)"
		args = append(args, pq.Array(f.statusStrings()))
	}
	return query, args
}

func (s *Store) ListOrdersForSeller(ctx context.Context, sellerID int64, f OrderFilter) ([]models.Order, error) {
	query, args := sellerQuery(orderColumns, sellerID, f)
	return selectOrders(ctx, s.db, query+" ORDER BY o.created_at DESC, o.id DESC", args...)
}

func (s *Store) CountOrdersForSeller(ctx context.Context, sellerID int64, f OrderFilter) (int, error) {
	query, args := sellerQuery("COUNT(*)", sellerID, f)
	var n int
	err := s.db.GetContext(ctx, &n, query, args...)
	return n, errors.Wrap(err, "count seller orders")
}

// pgTx implements Tx on a database transaction.
type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	ids = sortedUnique(ids)
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	err := t.tx.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE", pq.Array(ids))
	return products, errors.Wrap(err, "lock products")
}

// AdjustStock applies delta with a conditional update, so the non-negative
// check and the write are a single statement.
func (t *pgTx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	var stock int
	err := t.tx.GetContext(ctx, &stock,
		`UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		 WHERE id = $2 AND stock_quantity + $1 >= 0
		 RETURNING stock_quantity`,
		delta, productID)
	if err == nil {
		return stock, nil
	}
	if err != sql.ErrNoRows {
		return 0, errors.Wrapf(err, "adjust stock of product %d", productID)
	}

	var exists bool
	if err := t.tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID); err != nil {
		return 0, errors.Wrapf(err, "check product %d", productID)
	}
	if !exists {
		return 0, apperr.NotFound("product not found: %d", productID)
	}
	return 0, ErrStockConflict
}

// InsertOrder creates the order row and its items. A repeated idempotency
// key for the same user yields a conflict.
func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (user_id, status, total_amount, payment_method, payment_ref, idempotency_key,
			shipping_full_name, shipping_address_line1, shipping_city, shipping_postal_code,
			shipping_country, shipping_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	a := o.ShippingAddress
	err := t.tx.QueryRowxContext(ctx, query,
		o.UserID, o.Status, o.TotalAmount, o.PaymentMethod, o.PaymentRef, o.IdempotencyKey,
		a.FullName, a.AddressLine1, a.City, a.PostalCode, a.Country, a.Phone).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("idempotency key already used")
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := t.tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_at_order)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.PriceAtOrder).Scan(&item.ID)
		if err != nil {
			return errors.Wrapf(err, "insert item for product %d", item.ProductID)
		}
	}
	return nil
}

// GetOrderForUpdate locks the order row until the transaction ends.
func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	order, err := getOrder(ctx, t.tx, "SELECT "+orderColumns+" FROM orders o WHERE o.id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	return order, nil
}

// UpdateOrder updates the mutable order columns
func (t *pgTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	err := t.tx.QueryRowxContext(ctx,
		`UPDATE orders SET status = $1, tracking_number = $2, cancel_reason = $3, updated_at = NOW()
		 WHERE id = $4 RETURNING updated_at`,
		o.Status, o.TrackingNumber, o.CancelReason, o.ID).Scan(&o.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperr.NotFound("order not found: %d", o.ID)
	}
	return errors.Wrapf(err, "update order %d", o.ID)
}
