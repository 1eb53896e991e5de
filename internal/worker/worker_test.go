package worker

import (
	"context"
	"testing"
	"time"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/broker"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/service"
	"marketplace-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatched struct {
	provider *service.SimulatedProvider
	orders   *service.OrderService
	customer auth.Principal
	order    *models.Order
}

// placeDispatched places an order whose cancellation events go through a
// LocalDispatcher.
func placeDispatched(t *testing.T, latency time.Duration, ref string) *dispatched {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemoryStore()
	provider := service.NewSimulatedProvider(latency)
	payments := service.NewPaymentService(provider)
	compensation := service.NewCompensationHandler(repo, payments, broker.NopPublisher{})
	dispatcher := NewLocalDispatcher(compensation)

	orders := service.NewOrderService(repo, service.NewInventoryLedger(repo, nil), payments, dispatcher,
		service.OrderConfig{PaymentConfirmationRequired: true, IdempotencyWindow: time.Hour})

	user := &models.User{FirstName: "A", LastName: "B", Email: "a@b.com", Roles: models.Roles{models.RoleCustomer}, Enabled: true}
	require.NoError(t, repo.CreateUser(ctx, user))
	product := &models.Product{Name: "Lamp", Price: decimal.RequireFromString("12.50"), StockQuantity: 3, Active: true}
	require.NoError(t, repo.CreateProduct(ctx, product))

	customer := auth.Principal{UserID: user.ID, Email: user.Email, Roles: user.Roles}
	order, err := orders.CreateOrder(ctx, customer, &service.CreateOrderRequest{
		ShippingAddress: models.ShippingAddress{
			FullName: "Ada Lovelace", AddressLine1: "1 Main St", City: "Ankara",
			PostalCode: "06000", Phone: "+90 555 000 0000",
		},
		PaymentMethod: "card",
		PaymentRef:    ref,
		Items:         []service.OrderItemRequest{{ProductID: product.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	return &dispatched{provider: provider, orders: orders, customer: customer, order: order}
}

func TestLocalDispatcher_RefundsCancelledOrder(t *testing.T) {
	d := placeDispatched(t, 0, "pay_worker")
	assert.False(t, d.provider.Refunded("pay_worker"))

	_, err := d.orders.CancelOrder(context.Background(), d.customer, access.AsCustomer, d.order.ID, "changed my mind")
	require.NoError(t, err)
	assert.True(t, d.provider.Refunded("pay_worker"))
}

func TestLocalDispatcher_RefundOutlivesRequestContext(t *testing.T) {
	d := placeDispatched(t, time.Millisecond, "pay_gone")

	// the client is gone by the time the cancellation commits
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cancelled, err := d.orders.CancelOrder(ctx, d.customer, access.AsCustomer, d.order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.True(t, d.provider.Refunded("pay_gone"))
}

func TestLocalDispatcher_DropsOtherEvents(t *testing.T) {
	d := NewLocalDispatcher(nil)
	assert.NoError(t, d.PublishOrderCreated(context.Background(), &models.OrderCreatedEvent{}))
	assert.NoError(t, d.PublishOrderStatusChanged(context.Background(), &models.OrderStatusChangedEvent{}))
}
