package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	changed   []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
	refunds   []*models.RefundResultEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *recordingPublisher) PublishRefundResult(_ context.Context, e *models.RefundResultEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, e)
	return nil
}

type fakeMirror struct {
	mu     sync.Mutex
	stock  map[int64]int
	active map[int64]bool
	fail   bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{stock: map[int64]int{}, active: map[int64]bool{}}
}

func (m *fakeMirror) SetStock(_ context.Context, id int64, stock int, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("mirror down")
	}
	m.stock[id] = stock
	m.active[id] = active
	return nil
}

func (m *fakeMirror) GetStock(_ context.Context, id int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock, ok := m.stock[id]
	if !ok || m.fail {
		return 0, false, fmt.Errorf("miss")
	}
	return stock, m.active[id], nil
}

func (m *fakeMirror) InvalidateStock(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stock, id)
	delete(m.active, id)
	return nil
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	repo      *store.MemoryStore
	mirror    *fakeMirror
	provider  *SimulatedProvider
	publisher *recordingPublisher
	ledger    *InventoryLedger
	payments  *PaymentService
	orders    *OrderService
	sellers   *SellerOrderService
	users     *UserService
	refunds   *CompensationHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := store.NewMemoryStore()
	mirror := newFakeMirror()
	provider := NewSimulatedProvider(0)
	publisher := &recordingPublisher{}
	ledger := NewInventoryLedger(repo, mirror)
	payments := NewPaymentService(provider)
	orders := NewOrderService(repo, ledger, payments, publisher, OrderConfig{
		PaymentConfirmationRequired: true,
		IdempotencyWindow:           24 * time.Hour,
	})
	return &fixture{
		t:         t,
		ctx:       context.Background(),
		repo:      repo,
		mirror:    mirror,
		provider:  provider,
		publisher: publisher,
		ledger:    ledger,
		payments:  payments,
		orders:    orders,
		sellers:   NewSellerOrderService(repo, orders, nil),
		users:     NewUserService(repo),
		refunds:   NewCompensationHandler(repo, payments, publisher),
	}
}

// user stores an account and returns a principal for it.
func (f *fixture) user(email string, roles ...models.Role) auth.Principal {
	f.t.Helper()
	u := &models.User{FirstName: "Test", LastName: "User", Email: email, PasswordHash: "x", Roles: roles, Enabled: true}
	require.NoError(f.t, f.repo.CreateUser(f.ctx, u))
	return auth.Principal{UserID: u.ID, Email: u.Email, Roles: u.Roles}
}

func (f *fixture) product(seller *auth.Principal, price string, stock int) *models.Product {
	f.t.Helper()
	p := &models.Product{
		Name:          "Product " + price,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Active:        true,
	}
	if seller != nil {
		id := seller.UserID
		p.SellerID = &id
	}
	require.NoError(f.t, f.repo.CreateProduct(f.ctx, p))
	return p
}

func (f *fixture) stock(productID int64) int {
	f.t.Helper()
	p, err := f.repo.GetProductByID(f.ctx, productID)
	require.NoError(f.t, err)
	return p.StockQuantity
}

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		FullName:     "Ada Lovelace",
		AddressLine1: "Atatürk Cd. 1",
		City:         "Ankara",
		PostalCode:   "06000",
		Phone:        "+90 555 123 4567",
	}
}

func orderRequest(items ...OrderItemRequest) *CreateOrderRequest {
	return &CreateOrderRequest{
		ShippingAddress: validAddress(),
		PaymentMethod:   "card",
		PaymentRef:      "pay_" + fmt.Sprint(time.Now().UnixNano()),
		Items:           items,
	}
}

func line(productID int64, qty int) OrderItemRequest {
	return OrderItemRequest{ProductID: productID, Quantity: qty}
}

func (f *fixture) placeOrder(customer auth.Principal, items ...OrderItemRequest) *models.Order {
	f.t.Helper()
	order, err := f.orders.CreateOrder(f.ctx, customer, orderRequest(items...))
	require.NoError(f.t, err)
	return order
}

// hookedProvider counts refunds and runs beforeConfirm once, ahead of the
// next confirmation.
type hookedProvider struct {
	*SimulatedProvider
	beforeConfirm func()

	mu      sync.Mutex
	refunds int
}

func (p *hookedProvider) Confirm(ctx context.Context, ref string, amount decimal.Decimal) (bool, error) {
	if hook := p.beforeConfirm; hook != nil {
		p.beforeConfirm = nil
		hook()
	}
	return p.SimulatedProvider.Confirm(ctx, ref, amount)
}

func (p *hookedProvider) Refund(ctx context.Context, ref string) (bool, error) {
	p.mu.Lock()
	p.refunds++
	p.mu.Unlock()
	return p.SimulatedProvider.Refund(ctx, ref)
}

func (p *hookedProvider) refundCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refunds
}

// useProvider rewires the payment path of f through provider.
func (f *fixture) useProvider(provider *hookedProvider) {
	f.provider = provider.SimulatedProvider
	f.payments = NewPaymentService(provider)
	f.orders = NewOrderService(f.repo, f.ledger, f.payments, f.publisher, f.orders.cfg)
	f.sellers = NewSellerOrderService(f.repo, f.orders, nil)
	f.refunds = NewCompensationHandler(f.repo, f.payments, f.publisher)
}
