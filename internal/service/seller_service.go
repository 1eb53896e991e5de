package service

import (
	"context"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"

	"go.uber.org/zap"
)

// SellerOrderService is the seller-scoped view over orders. An order is in
// scope when at least one of its items references a product the seller owns
// at the time of the request. Items of other sellers stay visible.
type SellerOrderService struct {
	repo    store.Repository
	orders  *OrderService
	pending []models.OrderStatus
	logger  *zap.Logger
}

// NewSellerOrderService creates the seller view. pending is the status set
// counted by CountPending.
func NewSellerOrderService(repo store.Repository, orders *OrderService, pending []models.OrderStatus) *SellerOrderService {
	if len(pending) == 0 {
		pending = []models.OrderStatus{models.OrderStatusProcessing}
	}
	return &SellerOrderService{
		repo:    repo,
		orders:  orders,
		pending: pending,
		logger:  util.GetLogger(),
	}
}

// ListForSeller returns the seller's orders newest first, optionally
// restricted to the given statuses.
func (s *SellerOrderService) ListForSeller(ctx context.Context, p auth.Principal, statuses ...models.OrderStatus) ([]models.Order, error) {
	return s.orders.ListOrders(ctx, p, access.AsSeller, store.OrderFilter{Statuses: statuses})
}

// GetForSeller returns NotFound for orders outside the seller's scope.
func (s *SellerOrderService) GetForSeller(ctx context.Context, p auth.Principal, orderID int64) (*models.Order, error) {
	return s.orders.GetOrder(ctx, p, access.AsSeller, orderID)
}

// UpdateStatusForSeller re-checks ownership under the order lock and then
// applies the change with seller rights.
func (s *SellerOrderService) UpdateStatusForSeller(ctx context.Context, p auth.Principal, orderID int64, target models.OrderStatus, tracking string) (*models.Order, error) {
	return s.orders.UpdateStatus(ctx, p, access.AsSeller, orderID, target, tracking)
}

// CountPending counts the seller's orders that need attention.
func (s *SellerOrderService) CountPending(ctx context.Context, p auth.Principal) (int, error) {
	ctx, span := util.StartSpan(ctx, "SellerOrderService.CountPending")
	defer span.End()

	if err := access.RequireCapacity(p, access.AsSeller); err != nil {
		return 0, err
	}
	return s.repo.CountOrdersForSeller(ctx, p.UserID, store.OrderFilter{Statuses: s.pending})
}

// PendingStatuses returns the status set counted by CountPending.
func (s *SellerOrderService) PendingStatuses() []models.OrderStatus {
	out := make([]models.OrderStatus, len(s.pending))
	copy(out, s.pending)
	return out
}
