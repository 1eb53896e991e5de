package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace-orders/internal/models"
	"marketplace-orders/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func (ep *EventPublisher) publish(ctx context.Context, eventType string, orderID int64, event interface{}) error {
	err := ep.producer.PublishEvent(ctx, orderKey(orderID), event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
	return err
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.publish(ctx, event.EventType, event.OrderID, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.publish(ctx, event.EventType, event.OrderID, event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.publish(ctx, event.EventType, event.OrderID, event)
}

// PublishRefundResult publishes PaymentRefunded or PaymentRefundFailed
func (ep *EventPublisher) PublishRefundResult(ctx context.Context, event *models.RefundResultEvent) error {
	return ep.publish(ctx, event.EventType, event.OrderID, event)
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error { return nil }

func (NopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}

func (NopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}

func (NopPublisher) PublishRefundResult(context.Context, *models.RefundResultEvent) error { return nil }

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCancelled func(context.Context, *models.OrderCancelledEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without
// a handler are acknowledged and skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}
	}

	return nil
}
