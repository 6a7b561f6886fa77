package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the catalog
type Category struct {
	ID            int64  `db:"id" json:"id"`
	Title         string `db:"title" json:"title"`
	ProductsCount int    `db:"products_count" json:"products_count"`
}

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Slug        string          `db:"slug" json:"slug"`
	Inventory   int             `db:"inventory" json:"inventory"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	CategoryID  int64           `db:"category_id" json:"category_id"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductImage is an image reference attached to a product
type ProductImage struct {
	ID        int64  `db:"id" json:"id"`
	ProductID int64  `db:"product_id" json:"-"`
	Image     string `db:"image" json:"image"`
}

// ProductDetail is a product with its category title and images
type ProductDetail struct {
	Product
	Category string         `json:"category"`
	Images   []ProductImage `json:"images"`
}

// Cart is an anonymous basket keyed by an opaque token
type Cart struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartItem is one product line in a cart
type CartItem struct {
	ID        int64  `db:"id" json:"id"`
	CartID    string `db:"cart_id" json:"-"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// Order is the persisted outcome of a checkout attempt
type Order struct {
	ID            int64     `db:"id" json:"id"`
	CustomerID    int64     `db:"customer_id" json:"customer_id"`
	PlacedAt      time.Time `db:"placed_at" json:"placed_at"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
}

// OrderItem freezes the unit price of a product at checkout time
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product_id"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// OrderDetail is an order with its items
type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

// User is a registered customer or staff member
type User struct {
	ID           int64      `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Phone        string     `db:"phone" json:"phone"`
	Address      string     `db:"address" json:"address"`
	BirthDate    *time.Time `db:"birth_date" json:"-"`
	IsStaff      bool       `db:"is_staff" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"-"`
}

// Payment statuses of an order
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusComplete = "COMPLETE"
	PaymentStatusFailed   = "FAILED"
)

var validNext = map[string]map[string]bool{
	PaymentStatusPending:  {PaymentStatusComplete: true, PaymentStatusFailed: true},
	PaymentStatusComplete: {},
	PaymentStatusFailed:   {},
}

// CanTransition reports whether an order may move from one payment status to another.
func CanTransition(from, to string) bool {
	return validNext[from][to]
}

// Total sums unit price times quantity over the items.
func (o *OrderDetail) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
