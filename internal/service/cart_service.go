package service

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles anonymous carts and their line items
type CartService struct {
	repo   store.Repository
	logger *zap.Logger
}

func NewCartService(repo store.Repository) *CartService {
	return &CartService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// CartProduct is the product summary shown on a cart line
type CartProduct struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CartLine is a cart item with its product and line total
type CartLine struct {
	ID         int64           `json:"id"`
	Product    CartProduct     `json:"product"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type CartDetail struct {
	ID         string          `json:"id"`
	Items      []CartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func (s *CartService) CreateCart(ctx context.Context) (*CartDetail, error) {
	ctx, span := util.StartSpan(ctx, "CartService.CreateCart")
	defer span.End()

	cart := &models.Cart{ID: uuid.New().String()}
	if err := s.repo.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	s.logger.Debug("Cart created", zap.String("cart_id", cart.ID))
	return &CartDetail{ID: cart.ID, Items: []CartLine{}, TotalPrice: decimal.Zero}, nil
}

func (s *CartService) GetCart(ctx context.Context, cartID string) (*CartDetail, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	if err := s.checkCart(ctx, s.repo, cartID); err != nil {
		return nil, err
	}
	lines, err := s.ListItems(ctx, cartID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalPrice)
	}
	return &CartDetail{ID: cartID, Items: lines, TotalPrice: total}, nil
}

// DeleteCart removes a cart and every item in it
func (s *CartService) DeleteCart(ctx context.Context, cartID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.DeleteCart")
	defer span.End()

	if _, err := uuid.Parse(cartID); err != nil {
		return fmt.Errorf("cart %q: %w", cartID, ErrNotFound)
	}
	return translateStoreError(s.repo.DeleteCart(ctx, cartID))
}

func (s *CartService) ListItems(ctx context.Context, cartID string) ([]CartLine, error) {
	if err := s.checkCart(ctx, s.repo, cartID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return s.describeLines(ctx, items)
}

func (s *CartService) GetItem(ctx context.Context, cartID string, itemID int64) (*CartLine, error) {
	if err := s.checkCart(ctx, s.repo, cartID); err != nil {
		return nil, err
	}
	item, err := s.repo.GetCartItem(ctx, cartID, itemID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return s.describeLine(ctx, item)
}

// AddItem puts a product in the cart. Adding a product already in the cart
// sums the quantities into the existing line; the summed quantity must not
// exceed the product's inventory.
func (s *CartService) AddItem(ctx context.Context, cartID string, productID int64, quantity int) (*CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	var item *models.CartItem
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		if err := s.checkCart(ctx, q, cartID); err != nil {
			return err
		}
		product, err := q.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			util.CartItemsRejectedTotal.WithLabelValues("unknown_product").Inc()
			return NewValidationError("product_id", "No product with the given ID was found.")
		}
		if err != nil {
			return err
		}

		existing, err := q.GetCartItemByProduct(ctx, cartID, productID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := checkInventory(product, quantity); err != nil {
				return err
			}
			item = &models.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
			return q.CreateCartItem(ctx, item)
		case err != nil:
			return err
		}

		total := existing.Quantity + quantity
		if err := checkInventory(product, total); err != nil {
			return err
		}
		if err := q.UpdateCartItemQuantity(ctx, existing.ID, total); err != nil {
			return err
		}
		existing.Quantity = total
		item = existing
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err)
	}

	util.CartItemsAddedTotal.Inc()
	s.logger.Debug("Cart item added",
		zap.String("cart_id", cartID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", item.Quantity))
	return s.describeLine(ctx, item)
}

// UpdateItem sets the quantity of a line, re-checking inventory
func (s *CartService) UpdateItem(ctx context.Context, cartID string, itemID int64, quantity int) (*CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	var item *models.CartItem
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		if err := s.checkCart(ctx, q, cartID); err != nil {
			return err
		}
		var err error
		item, err = q.GetCartItem(ctx, cartID, itemID)
		if err != nil {
			return err
		}
		product, err := q.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if err := checkInventory(product, quantity); err != nil {
			return err
		}
		if err := q.UpdateCartItemQuantity(ctx, item.ID, quantity); err != nil {
			return err
		}
		item.Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err)
	}
	return s.describeLine(ctx, item)
}

func (s *CartService) RemoveItem(ctx context.Context, cartID string, itemID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := s.checkCart(ctx, s.repo, cartID); err != nil {
		return err
	}
	return translateStoreError(s.repo.DeleteCartItem(ctx, cartID, itemID))
}

// checkCart returns ErrNotFound for malformed or unknown cart tokens
func (s *CartService) checkCart(ctx context.Context, q store.Querier, cartID string) error {
	if _, err := uuid.Parse(cartID); err != nil {
		return fmt.Errorf("cart %q: %w", cartID, ErrNotFound)
	}
	if _, err := q.GetCart(ctx, cartID); err != nil {
		return translateStoreError(err)
	}
	return nil
}

func checkQuantity(quantity int) error {
	if quantity < 1 {
		util.CartItemsRejectedTotal.WithLabelValues("invalid_quantity").Inc()
		return NewValidationError("quantity", "Ensure this value is greater than or equal to 1.")
	}
	return nil
}

func checkInventory(p *models.Product, quantity int) error {
	if quantity > p.Inventory {
		util.CartItemsRejectedTotal.WithLabelValues("insufficient_inventory").Inc()
		return NewValidationError("quantity",
			fmt.Sprintf("Not enough inventory for %q: %d requested, %d available.", p.Title, quantity, p.Inventory))
	}
	return nil
}

func (s *CartService) describeLine(ctx context.Context, item *models.CartItem) (*CartLine, error) {
	lines, err := s.describeLines(ctx, []models.CartItem{*item})
	if err != nil {
		return nil, err
	}
	return &lines[0], nil
}

func (s *CartService) describeLines(ctx context.Context, items []models.CartItem) ([]CartLine, error) {
	lines := make([]CartLine, 0, len(items))
	if len(items) == 0 {
		return lines, nil
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, it := range items {
		p := byID[it.ProductID]
		lines = append(lines, CartLine{
			ID:         it.ID,
			Product:    CartProduct{ID: p.ID, Title: p.Title, UnitPrice: p.UnitPrice},
			Quantity:   it.Quantity,
			TotalPrice: p.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	return lines, nil
}
