package service

import (
	"context"
	"fmt"

	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"

	"go.uber.org/zap"
)

// CompensationHandler refunds the payment of cancelled orders. Each
// ORDER_CANCELLED event triggers at most one refund call; failures are
// reported and logged, never retried.
type CompensationHandler struct {
	repo      store.Repository
	payments  *PaymentService
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCompensationHandler creates a new compensation handler
func NewCompensationHandler(repo store.Repository, payments *PaymentService, publisher EventPublisher) *CompensationHandler {
	return &CompensationHandler{
		repo:      repo,
		payments:  payments,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleOrderCancelled handles an OrderCancelled event
func (h *CompensationHandler) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "CompensationHandler.HandleOrderCancelled")
	defer span.End()

	processed, err := h.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	// claimed before the provider call; of two overlapping deliveries only
	// the one that wins the claim refunds
	claimed, err := h.repo.MarkEventProcessed(ctx, event.EventID, event.EventType)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if !claimed {
		h.logger.Info("Event claimed by another delivery", zap.String("event_id", event.EventID))
		return nil
	}

	if event.PaymentRef == "" {
		h.logger.Info("Cancelled order has no payment to refund", zap.Int64("order_id", event.OrderID))
		return nil
	}

	result := &models.RefundResultEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentRefunded),
		OrderID:    event.OrderID,
		PaymentRef: event.PaymentRef,
	}

	ok, err := h.payments.Refund(ctx, event.PaymentRef)
	switch {
	case err != nil:
		result.EventType = models.EventTypeRefundFailed
		result.Reason = err.Error()
		h.logger.Error("Refund failed",
			zap.Int64("order_id", event.OrderID),
			zap.String("payment_ref", event.PaymentRef),
			zap.Error(err))
	case !ok:
		result.EventType = models.EventTypeRefundFailed
		result.Reason = "refund declined"
		h.logger.Error("Refund declined",
			zap.Int64("order_id", event.OrderID),
			zap.String("payment_ref", event.PaymentRef))
	default:
		h.logger.Info("Payment refunded",
			zap.Int64("order_id", event.OrderID),
			zap.String("payment_ref", event.PaymentRef))
	}

	if err := h.publisher.PublishRefundResult(ctx, result); err != nil {
		h.logger.Error("Failed to publish refund result", zap.Error(err))
	}
	return nil
}
