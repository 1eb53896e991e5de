package worker

import (
	"context"

	"marketplace-orders/internal/broker"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/service"
	"marketplace-orders/internal/util"

	"go.uber.org/zap"
)

// RefundWorker consumes order events and refunds cancelled orders
type RefundWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewRefundWorker creates a new refund worker
func NewRefundWorker(consumer *broker.Consumer, compensation *service.CompensationHandler) *RefundWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCancelled(compensation.HandleOrderCancelled)

	return &RefundWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *RefundWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting refund worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RefundWorker) Stop() error {
	w.logger.Info("Stopping refund worker")
	return w.consumer.Close()
}

// LocalDispatcher hands ORDER_CANCELLED events straight to the refund
// handler and drops every other event. It replaces the broker when no
// Kafka brokers are configured.
type LocalDispatcher struct {
	broker.NopPublisher
	compensation *service.CompensationHandler
}

func NewLocalDispatcher(compensation *service.CompensationHandler) *LocalDispatcher {
	return &LocalDispatcher{compensation: compensation}
}

func (d *LocalDispatcher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return d.compensation.HandleOrderCancelled(ctx, event)
}

var _ service.EventPublisher = (*LocalDispatcher)(nil)
