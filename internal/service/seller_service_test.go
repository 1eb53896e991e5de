package service

import (
	"testing"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellerOrderService_Scope(t *testing.T) {
	f := newFixture(t)
	customer := f.user("c@example.com", models.RoleCustomer)
	seller := f.user("s@example.com", models.RoleSeller)
	other := f.user("o@example.com", models.RoleSeller)
	admin := f.user("a@example.com", models.RoleAdmin)
	mine := f.product(&seller, "10.00", 10)
	theirs := f.product(&other, "20.00", 10)

	mixed := f.placeOrder(customer, line(mine.ID, 1), line(theirs.ID, 1))
	foreign := f.placeOrder(customer, line(theirs.ID, 2))
	own := f.placeOrder(customer, line(mine.ID, 3))

	orders, err := f.sellers.ListForSeller(f.ctx, seller)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, own.ID, orders[0].ID)
	assert.Equal(t, mixed.ID, orders[1].ID)

	_, err = f.sellers.GetForSeller(f.ctx, seller, foreign.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.sellers.GetForSeller(f.ctx, seller, 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.sellers.GetForSeller(f.ctx, seller, mixed.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)

	n, err := f.sellers.CountPending(f.ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.sellers.UpdateStatusForSeller(f.ctx, seller, own.ID, models.OrderStatusShipped, "")
	require.NoError(t, err)

	n, err = f.sellers.CountPending(f.ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	shipped, err := f.sellers.ListForSeller(f.ctx, seller, models.OrderStatusShipped)
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, own.ID, shipped[0].ID)

	_, err = f.sellers.UpdateStatusForSeller(f.ctx, seller, foreign.ID, models.OrderStatusShipped, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.sellers.ListForSeller(f.ctx, customer)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = f.sellers.CountPending(f.ctx, admin)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestSellerOrderService_OwnershipIsDerivedOnEveryRead(t *testing.T) {
	f := newFixture(t)
	customer := f.user("c@example.com", models.RoleCustomer)
	seller := f.user("s@example.com", models.RoleSeller)
	buyer := f.user("b@example.com", models.RoleSeller)
	p := f.product(&seller, "10.00", 10)

	order := f.placeOrder(customer, line(p.ID, 1))
	_, err := f.sellers.GetForSeller(f.ctx, seller, order.ID)
	require.NoError(t, err)

	// the product changes hands; the order follows it
	p.SellerID = &buyer.UserID
	require.NoError(t, f.repo.UpdateProduct(f.ctx, p))

	_, err = f.sellers.GetForSeller(f.ctx, seller, order.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.sellers.UpdateStatusForSeller(f.ctx, seller, order.ID, models.OrderStatusShipped, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.sellers.GetForSeller(f.ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestSellerOrderService_PendingStatusesConfigurable(t *testing.T) {
	f := newFixture(t)
	svc := NewSellerOrderService(f.repo, f.orders, []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusShipped})
	assert.Equal(t, []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusShipped}, svc.PendingStatuses())
	assert.Equal(t, []models.OrderStatus{models.OrderStatusProcessing}, f.sellers.PendingStatuses())
}
