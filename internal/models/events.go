package models

import "time"

// Event types
const (
	EventTypeOrderCreated = "ORDER_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published after a checkout has been finalized,
// whatever the payment outcome.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	CustomerID    int64           `json:"customer_id"`
	PaymentStatus string          `json:"payment_status"`
	TotalMinor    int64           `json:"total_minor"`
	Items         []OrderItemData `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}
