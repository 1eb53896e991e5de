package service

import (
	"context"

	"marketplace-orders/internal/models"
)

// EventPublisher receives domain events after the transaction that caused
// them has committed. Implemented by broker.EventPublisher and
// broker.NopPublisher.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishRefundResult(ctx context.Context, event *models.RefundResultEvent) error
}

// StockMirror is a best-effort read cache of product stock, implemented by
// redisclient.Client.
type StockMirror interface {
	SetStock(ctx context.Context, productID int64, stock int, active bool) error
	GetStock(ctx context.Context, productID int64) (int, bool, error)
	InvalidateStock(ctx context.Context, productID int64) error
}
