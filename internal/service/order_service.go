package service

import (
	"context"
	"time"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderConfig holds the business switches of the order flow.
type OrderConfig struct {
	// PaymentConfirmationRequired makes checkout confirm the payment
	// reference against the quoted total.
	PaymentConfirmationRequired bool
	// IdempotencyWindow is how long a repeated Idempotency-Key returns the
	// original order. Zero means forever.
	IdempotencyWindow time.Duration
}

// OrderService is the only writer of orders and their items. Every
// stock-affecting transition goes through the InventoryLedger within the
// same transaction as the order write.
type OrderService struct {
	repo      store.Repository
	ledger    *InventoryLedger
	payments  *PaymentService
	publisher EventPublisher
	cfg       OrderConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	ledger *InventoryLedger,
	payments *PaymentService,
	publisher EventPublisher,
	cfg OrderConfig,
) *OrderService {
	return &OrderService{
		repo:      repo,
		ledger:    ledger,
		payments:  payments,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CreateOrder turns a cart into a PROCESSING order. Stock for every line is
// reserved in the same transaction that persists the order, so either all
// effects happen or none do.
func (s *OrderService) CreateOrder(ctx context.Context, p auth.Principal, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int64("user_id", p.UserID))
	defer span.End()

	if err := access.RequireCapacity(p, access.AsCustomer); err != nil {
		return nil, err
	}

	req.Normalize()
	if err := req.Validate(s.cfg.PaymentConfirmationRequired); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	customer, err := s.repo.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !customer.Enabled {
		return nil, apperr.AccessDenied("account is disabled")
	}

	if existing, err := s.findIdempotent(ctx, customer.ID, req.IdempotencyKey); err != nil || existing != nil {
		return existing, err
	}

	quoted, err := s.quote(ctx, req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}

	if s.cfg.PaymentConfirmationRequired {
		if err := s.payments.Confirm(ctx, req.PaymentRef, quoted); err != nil {
			util.OrdersFailedTotal.WithLabelValues("payment").Inc()
			return nil, err
		}
	}

	order := &models.Order{
		UserID:          customer.ID,
		Status:          models.OrderStatusProcessing,
		PaymentMethod:   req.PaymentMethod,
		PaymentRef:      req.PaymentRef,
		IdempotencyKey:  req.IdempotencyKey,
		ShippingAddress: req.ShippingAddress,
	}

	start := time.Now()
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		return s.placeLocked(ctx, tx, order, req, quoted)
	})
	util.InventoryReserveLatency.Observe(time.Since(start).Seconds())

	if errors.Is(err, apperr.ErrConflict) && req.IdempotencyKey != "" {
		// a concurrent request with the same key won the insert
		if existing, findErr := s.repo.GetOrderByIdempotencyKey(ctx, customer.ID, req.IdempotencyKey); findErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		util.RecordError(span, err)
		s.logger.Warn("Order rejected",
			zap.Int64("user_id", customer.ID),
			zap.Error(err))
		if s.cfg.PaymentConfirmationRequired {
			s.refundUnplaced(ctx, req.PaymentRef)
		}
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	s.ledger.Refresh(ctx, req.productIDs()...)
	s.publishCreated(ctx, order)
	return order, nil
}

// refundUnplaced returns a confirmed payment whose order was never placed.
// The result is logged, never retried.
func (s *OrderService) refundUnplaced(ctx context.Context, ref string) {
	ctx, cancel := detached(ctx)
	defer cancel()

	ok, err := s.payments.Refund(ctx, ref)
	switch {
	case err != nil:
		s.logger.Error("Refund of unplaced order failed", zap.String("payment_ref", ref), zap.Error(err))
	case !ok:
		s.logger.Error("Refund of unplaced order declined", zap.String("payment_ref", ref))
	default:
		s.logger.Info("Payment of unplaced order refunded", zap.String("payment_ref", ref))
	}
}

// findIdempotent returns the order previously placed with key, if any.
func (s *OrderService) findIdempotent(ctx context.Context, userID int64, key string) (*models.Order, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, userID, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if s.cfg.IdempotencyWindow > 0 && s.now().Sub(existing.CreatedAt) > s.cfg.IdempotencyWindow {
		return nil, apperr.Conflict("idempotency key has expired")
	}
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))
	return existing, nil
}

// quote prices the request from an unlocked read of the catalog. It rejects
// requests that cannot succeed before any payment call is made; the
// authoritative checks run again under lock.
func (s *OrderService) quote(ctx context.Context, req *CreateOrderRequest) (decimal.Decimal, error) {
	products, err := s.repo.GetProductsByIDs(ctx, req.productIDs())
	if err != nil {
		return decimal.Zero, err
	}
	_, total, err := buildItems(req.Items, products)
	return total, err
}

// placeLocked revalidates the request against locked product rows, reserves
// stock and inserts the order.
func (s *OrderService) placeLocked(ctx context.Context, tx store.Tx, order *models.Order, req *CreateOrderRequest, quoted decimal.Decimal) error {
	products, err := tx.LockProducts(ctx, req.productIDs())
	if err != nil {
		return err
	}

	items, total, err := buildItems(req.Items, products)
	if err != nil {
		return err
	}
	if s.cfg.PaymentConfirmationRequired && !total.Equal(quoted) {
		return apperr.Validation("prices changed during checkout: confirmed %s, now %s",
			quoted.StringFixed(2), total.StringFixed(2))
	}

	for _, item := range items {
		if _, err := s.ledger.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	order.Items = items
	order.TotalAmount = total
	return tx.InsertOrder(ctx, order)
}

// buildItems snapshots prices and checks that every product exists, is
// active and has stock for the cumulative quantity requested.
func buildItems(lines []OrderItemRequest, products []models.Product) ([]models.OrderItem, decimal.Decimal, error) {
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	wanted := make(map[int64]int, len(lines))
	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, decimal.Zero, apperr.NotFound("product not found: %d", line.ProductID)
		}
		if !product.Active {
			return nil, decimal.Zero, apperr.InsufficientStock("product %d is not available", product.ID)
		}
		wanted[product.ID] += line.Quantity
		if wanted[product.ID] > product.StockQuantity {
			return nil, decimal.Zero, apperr.InsufficientStock("insufficient stock for product %d: available %d, requested %d",
				product.ID, product.StockQuantity, wanted[product.ID])
		}

		item := models.OrderItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			SellerID:     product.SellerID,
			Quantity:     line.Quantity,
			PriceAtOrder: product.Price,
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}
	return items, total, nil
}

// GetOrder returns an order visible to p in capacity c. Orders outside the
// caller's scope are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, p auth.Principal, c access.Capacity, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	if err := access.RequireCapacity(p, c); err != nil {
		return nil, err
	}
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeOrderRead(p, c, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the orders in p's scope for capacity c, newest first.
func (s *OrderService) ListOrders(ctx context.Context, p auth.Principal, c access.Capacity, f store.OrderFilter) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders", attribute.String("capacity", string(c)))
	defer span.End()

	if err := access.RequireCapacity(p, c); err != nil {
		return nil, err
	}

	switch c {
	case access.AsAdmin:
		return s.repo.ListOrders(ctx, f)
	case access.AsSeller:
		return s.repo.ListOrdersForSeller(ctx, p.UserID, f)
	default:
		orders, err := s.repo.ListOrdersByUser(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		return filterOrders(orders, f), nil
	}
}

func filterOrders(orders []models.Order, f store.OrderFilter) []models.Order {
	if len(f.Statuses) == 0 {
		return orders
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		for _, st := range f.Statuses {
			if o.Status == st {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

// CancelOrder moves a PROCESSING order to CANCELLED and returns the stock of
// every item. Any other status is an illegal transition.
func (s *OrderService) CancelOrder(ctx context.Context, p auth.Principal, c access.Capacity, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	if err := access.RequireCapacity(p, c); err != nil {
		return nil, err
	}

	var order *models.Order
	var from models.OrderStatus
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := access.AuthorizeCancel(p, c, order); err != nil {
			return err
		}
		from = order.Status
		return s.cancelLocked(ctx, tx, order, reason)
	})
	if err != nil {
		util.OrderStatusRejectedTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		util.RecordError(span, err)
		return nil, err
	}

	s.afterCancel(ctx, p, c, order, from)
	return order, nil
}

// cancelLocked releases stock and marks the locked order as cancelled.
func (s *OrderService) cancelLocked(ctx context.Context, tx store.Tx, order *models.Order, reason string) error {
	if !order.Status.IsCancellable() {
		return apperr.IllegalTransition("order %d cannot be cancelled from %s", order.ID, order.Status)
	}
	ids := make([]int64, len(order.Items))
	for i, item := range order.Items {
		ids[i] = item.ProductID
	}
	// same lock order as placement
	if _, err := tx.LockProducts(ctx, ids); err != nil {
		return err
	}
	for _, item := range order.Items {
		if _, err := s.ledger.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	order.Status = models.OrderStatusCancelled
	order.CancelReason = reason
	return tx.UpdateOrder(ctx, order)
}

func (s *OrderService) afterCancel(ctx context.Context, p auth.Principal, c access.Capacity, order *models.Order, from models.OrderStatus) {
	util.OrdersCancelledTotal.WithLabelValues(string(c)).Inc()
	util.OrderStatusChangesTotal.WithLabelValues(string(order.Status), string(c)).Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.Int64("actor_id", p.UserID),
		zap.String("reason", order.CancelReason))

	ids := make([]int64, len(order.Items))
	for i, item := range order.Items {
		ids[i] = item.ProductID
	}
	s.ledger.Refresh(ctx, ids...)
	s.publishStatusChanged(ctx, p, order, from)
	s.publishCancelled(ctx, p, order)
}

// UpdateStatus applies a status change requested by p in capacity c. The
// checks run in a fixed order: visibility, the capacity's transition rights,
// terminal state, then reachability. A change to CANCELLED goes through the
// cancellation path so that stock is returned.
func (s *OrderService) UpdateStatus(ctx context.Context, p auth.Principal, c access.Capacity, orderID int64, target models.OrderStatus, tracking string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("target", string(target)))
	defer span.End()

	if err := access.RequireCapacity(p, c); err != nil {
		return nil, err
	}

	var order *models.Order
	var from models.OrderStatus
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := access.AuthorizeOrderRead(p, c, order); err != nil {
			return err
		}
		if err := access.AuthorizeStatusChange(c, target); err != nil {
			return err
		}

		from = order.Status
		if from.IsTerminal() {
			return apperr.TerminalState("order %d is %s", order.ID, from)
		}
		if !from.CanTransitionTo(target) {
			return apperr.IllegalTransition("cannot move order %d from %s to %s", order.ID, from, target)
		}

		if target == models.OrderStatusCancelled {
			return s.cancelLocked(ctx, tx, order, "cancelled by "+string(c))
		}
		order.Status = target
		if tracking != "" {
			order.TrackingNumber = tracking
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		util.OrderStatusRejectedTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		util.RecordError(span, err)
		s.logger.Info("Status change rejected",
			zap.Int64("order_id", orderID),
			zap.Int64("actor_id", p.UserID),
			zap.String("target", string(target)),
			zap.Error(err))
		return nil, err
	}

	if order.Status == models.OrderStatusCancelled {
		s.afterCancel(ctx, p, c, order, from)
		return order, nil
	}

	util.OrderStatusChangesTotal.WithLabelValues(string(order.Status), string(c)).Inc()
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
		zap.Int64("actor_id", p.UserID))
	s.publishStatusChanged(ctx, p, order, from)
	return order, nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

const detachedTimeout = 5 * time.Second

// detached survives cancellation of the request context, bounded by
// detachedTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
}

// Events are published after commit on a detached context. A failed publish
// is logged and does not undo the committed change.
func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	ctx, cancel := detached(ctx)
	defer cancel()

	items := make([]models.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = models.OrderItemData{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
		}
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, p auth.Principal, order *models.Order, from models.OrderStatus) {
	ctx, cancel := detached(ctx)
	defer cancel()
	event := &models.OrderStatusChangedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        order.ID,
		From:           from,
		To:             order.Status,
		ActorID:        p.UserID,
		TrackingNumber: order.TrackingNumber,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) publishCancelled(ctx context.Context, p auth.Principal, order *models.Order) {
	ctx, cancel := detached(ctx)
	defer cancel()
	event := &models.OrderCancelledEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:     order.ID,
		UserID:      order.UserID,
		ActorID:     p.UserID,
		PaymentRef:  order.PaymentRef,
		TotalAmount: order.TotalAmount,
		Reason:      order.CancelReason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}
