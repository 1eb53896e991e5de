package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentService_Confirm(t *testing.T) {
	ps := NewPaymentService(NewSimulatedProvider(0))
	ctx := context.Background()
	amount := decimal.RequireFromString("20.00")

	assert.NoError(t, ps.Confirm(ctx, "pay_1", amount))
	assert.ErrorIs(t, ps.Confirm(ctx, "declined_1", amount), apperr.ErrValidation)

	err := ps.Confirm(ctx, "fail_1", amount)
	assert.ErrorIs(t, err, apperr.ErrPaymentProvider)
	assert.Equal(t, "payment provider failure", apperr.MessageOf(err))
}

func TestSimulatedProvider_HonoursContext(t *testing.T) {
	p := NewSimulatedProvider(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Confirm(ctx, "pay_1", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompensationHandler_RefundsOncePerEvent(t *testing.T) {
	f := newFixture(t)
	customer := f.user("c@example.com", models.RoleCustomer)
	admin := f.user("a@example.com", models.RoleAdmin)
	p := f.product(nil, "10.00", 5)
	order := f.placeOrder(customer, line(p.ID, 1))

	_, err := f.orders.CancelOrder(f.ctx, admin, access.AsAdmin, order.ID, "out of stock at warehouse")
	require.NoError(t, err)
	require.Len(t, f.publisher.cancelled, 1)
	event := f.publisher.cancelled[0]

	require.NoError(t, f.refunds.HandleOrderCancelled(f.ctx, event))
	assert.True(t, f.provider.Refunded(order.PaymentRef))
	require.Len(t, f.publisher.refunds, 1)
	assert.Equal(t, models.EventTypePaymentRefunded, f.publisher.refunds[0].EventType)

	// redelivery is a no-op
	require.NoError(t, f.refunds.HandleOrderCancelled(f.ctx, event))
	assert.Len(t, f.publisher.refunds, 1)
}

func TestCompensationHandler_ReportsFailureWithoutRetry(t *testing.T) {
	f := newFixture(t)

	event := &models.OrderCancelledEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:    7,
		PaymentRef: "fail_7",
	}
	require.NoError(t, f.refunds.HandleOrderCancelled(f.ctx, event))
	require.Len(t, f.publisher.refunds, 1)
	assert.Equal(t, models.EventTypeRefundFailed, f.publisher.refunds[0].EventType)
	assert.NotEmpty(t, f.publisher.refunds[0].Reason)

	processed, err := f.repo.IsEventProcessed(f.ctx, event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, f.refunds.HandleOrderCancelled(f.ctx, event))
	assert.Len(t, f.publisher.refunds, 1)
}

func TestCompensationHandler_NothingToRefund(t *testing.T) {
	f := newFixture(t)
	event := &models.OrderCancelledEvent{BaseEvent: newBaseEvent(models.EventTypeOrderCancelled), OrderID: 1}

	require.NoError(t, f.refunds.HandleOrderCancelled(f.ctx, event))
	assert.Empty(t, f.publisher.refunds)
}

// bothChecked holds every IsEventProcessed caller until all of them have
// seen the event as unprocessed.
type bothChecked struct {
	*store.MemoryStore
	checked sync.WaitGroup
}

func (s *bothChecked) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	processed, err := s.MemoryStore.IsEventProcessed(ctx, eventID)
	s.checked.Done()
	s.checked.Wait()
	return processed, err
}

func TestCompensationHandler_OverlappingRedeliveryRefundsOnce(t *testing.T) {
	f := newFixture(t)
	provider := &hookedProvider{SimulatedProvider: NewSimulatedProvider(0)}
	f.useProvider(provider)

	repo := &bothChecked{MemoryStore: f.repo}
	repo.checked.Add(2)
	handler := NewCompensationHandler(repo, f.payments, f.publisher)
	event := &models.OrderCancelledEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:    3,
		PaymentRef: "pay_3",
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = handler.HandleOrderCancelled(context.Background(), event)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, provider.refundCalls())
	assert.True(t, f.provider.Refunded("pay_3"))
	require.Len(t, f.publisher.refunds, 1)
	assert.Equal(t, models.EventTypePaymentRefunded, f.publisher.refunds[0].EventType)
}
