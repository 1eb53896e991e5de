package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypePaymentRefunded    = "PAYMENT_REFUNDED"
	EventTypeRefundFailed       = "PAYMENT_REFUND_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after an order and its reservations commit
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a committed status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64       `json:"order_id"`
	From           OrderStatus `json:"from"`
	To             OrderStatus `json:"to"`
	ActorID        int64       `json:"actor_id"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
}

// OrderCancelledEvent published after a committed cancellation; drives the refund
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	ActorID     int64           `json:"actor_id"`
	PaymentRef  string          `json:"payment_ref"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Reason      string          `json:"reason"`
}

// RefundResultEvent published by the refund worker
type RefundResultEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
}
