package store

import (
	"context"
	"fmt"

	"shop-service/internal/models"
)

func (q *Queries) CreateCart(ctx context.Context, cart *models.Cart) error {
	return q.get(ctx, &cart.CreatedAt,
		"INSERT INTO carts (id) VALUES ($1) RETURNING created_at", cart.ID)
}

// GetCart retrieves a cart by its token
func (q *Queries) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	var cart models.Cart
	if err := q.get(ctx, &cart, "SELECT id, created_at FROM carts WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("cart %s: %w", id, err)
	}
	return &cart, nil
}

// DeleteCart removes a cart; its items go with it (ON DELETE CASCADE)
func (q *Queries) DeleteCart(ctx context.Context, id string) error {
	return q.execOne(ctx, "DELETE FROM carts WHERE id = $1", id)
}

func (q *Queries) ListCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := q.selectAll(ctx, &items,
		"SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

func (q *Queries) GetCartItem(ctx context.Context, cartID string, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := q.get(ctx, &item,
		"SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 AND id = $2",
		cartID, itemID)
	if err != nil {
		return nil, fmt.Errorf("cart item %d: %w", itemID, err)
	}
	return &item, nil
}

// GetCartItemByProduct finds the line for a product in a cart
func (q *Queries) GetCartItemByProduct(ctx context.Context, cartID string, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := q.get(ctx, &item,
		"SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2",
		cartID, productID)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (q *Queries) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	err := q.get(ctx, &item.ID,
		"INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id",
		item.CartID, item.ProductID, item.Quantity)
	return mapError(err)
}

func (q *Queries) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	return q.execOne(ctx, "UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
}

func (q *Queries) DeleteCartItem(ctx context.Context, cartID string, itemID int64) error {
	return q.execOne(ctx, "DELETE FROM cart_items WHERE cart_id = $1 AND id = $2", cartID, itemID)
}
