package store

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/models"
)

// CreateOrder inserts an order; ID, PlacedAt and PaymentStatus come back from the database
func (q *Queries) CreateOrder(ctx context.Context, order *models.Order) error {
	status := order.PaymentStatus
	if status == "" {
		status = models.PaymentStatusPending
	}
	return q.get(ctx, order, `
		INSERT INTO orders (customer_id, payment_status)
		VALUES ($1, $2)
		RETURNING id, customer_id, placed_at, payment_status`,
		order.CustomerID, status)
}

// CreateOrderItems bulk-inserts order items and fills in their IDs
func (q *Queries) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := "INSERT INTO order_items (order_id, product_id, unit_price, quantity) VALUES "
	args := make([]interface{}, 0, len(items)*4)
	for i, item := range items {
		if i > 0 {
			query += ", "
		}
		n := len(args)
		query += fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, item.OrderID, item.ProductID, item.UnitPrice, item.Quantity)
	}
	query += " RETURNING id"

	var ids []int64
	if err := q.selectAll(ctx, &ids, query, args...); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}
	if len(ids) != len(items) {
		return fmt.Errorf("inserted %d order items, expected %d", len(ids), len(items))
	}
	// RETURNING preserves VALUES order for a single multi-row INSERT.
	for i := range items {
		items[i].ID = ids[i]
	}
	return nil
}

// GetOrder retrieves an order by ID
func (q *Queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := q.get(ctx, &order,
		"SELECT id, customer_id, placed_at, payment_status FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	return &order, nil
}

// ListOrders retrieves orders for a customer
func (q *Queries) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := q.selectAll(ctx, &orders, `
		SELECT id, customer_id, placed_at, payment_status FROM orders
		WHERE customer_id = $1 ORDER BY placed_at DESC, id DESC`, customerID)
	return orders, err
}

func (q *Queries) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := q.selectAll(ctx, &orders,
		"SELECT id, customer_id, placed_at, payment_status FROM orders ORDER BY placed_at DESC, id DESC")
	return orders, err
}

// ListOrderItems retrieves the items of several orders at once
func (q *Queries) ListOrderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []models.OrderItem{}, nil
	}
	var items []models.OrderItem
	err := q.selectIn(ctx, &items,
		"SELECT id, order_id, product_id, unit_price, quantity FROM order_items WHERE order_id IN (?) ORDER BY id",
		orderIDs)
	return items, err
}

// UpdateOrderPaymentStatus moves an order between payment statuses. The
// update only applies while the order is still in the from status.
func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) error {
	err := q.execOne(ctx,
		"UPDATE orders SET payment_status = $1 WHERE id = $2 AND payment_status = $3",
		to, orderID, from)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := q.GetOrder(ctx, orderID); getErr != nil {
			return getErr
		}
		return ErrStaleStatus
	}
	return err
}

func (q *Queries) DeleteOrder(ctx context.Context, id int64) error {
	return q.execOne(ctx, "DELETE FROM orders WHERE id = $1", id)
}
