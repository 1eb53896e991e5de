package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/util"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentProvider is the external payment-capture provider. Confirm reports
// whether the payment intent behind ref succeeded for exactly amount.
type PaymentProvider interface {
	Confirm(ctx context.Context, ref string, amount decimal.Decimal) (bool, error)
	Refund(ctx context.Context, ref string) (bool, error)
}

// PaymentService wraps the provider with metrics and maps its answers onto
// the error kinds of the order flow.
type PaymentService struct {
	provider PaymentProvider
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(provider PaymentProvider) *PaymentService {
	return &PaymentService{
		provider: provider,
		logger:   util.GetLogger(),
	}
}

// Confirm returns nil only when the provider confirmed the payment. A
// declined payment is a validation error and a provider failure a
// PaymentProviderError.
func (ps *PaymentService) Confirm(ctx context.Context, ref string, amount decimal.Decimal) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.Confirm")
	defer span.End()

	start := time.Now()
	ok, err := ps.provider.Confirm(ctx, ref, amount)
	util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		util.PaymentConfirmationsTotal.WithLabelValues("error").Inc()
		ps.logger.Error("Payment provider failed", zap.String("payment_ref", ref), zap.Error(err))
		util.RecordError(span, err)
		return apperr.PaymentProvider(err)
	case !ok:
		util.PaymentConfirmationsTotal.WithLabelValues("declined").Inc()
		ps.logger.Warn("Payment not confirmed",
			zap.String("payment_ref", ref),
			zap.String("amount", amount.StringFixed(2)))
		return apperr.Validation("payment %s is not confirmed for amount %s", ref, amount.StringFixed(2))
	}

	util.PaymentConfirmationsTotal.WithLabelValues("confirmed").Inc()
	return nil
}

// Refund asks the provider to refund ref once. The result is reported, never
// retried.
func (ps *PaymentService) Refund(ctx context.Context, ref string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Refund")
	defer span.End()

	start := time.Now()
	ok, err := ps.provider.Refund(ctx, ref)
	util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		util.PaymentRefundsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return false, apperr.PaymentProvider(err)
	case !ok:
		util.PaymentRefundsTotal.WithLabelValues("declined").Inc()
	default:
		util.PaymentRefundsTotal.WithLabelValues("refunded").Inc()
	}
	return ok, nil
}

// SimulatedProvider is an in-process provider for development and tests.
// References starting with "declined_" are declined, "fail_" makes the
// provider fail, anything else is confirmed for any amount.
type SimulatedProvider struct {
	mu       sync.Mutex
	latency  time.Duration
	refunded map[string]bool
}

// NewSimulatedProvider creates a provider that answers after latency.
func NewSimulatedProvider(latency time.Duration) *SimulatedProvider {
	return &SimulatedProvider{
		latency:  latency,
		refunded: make(map[string]bool),
	}
}

func (p *SimulatedProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *SimulatedProvider) Confirm(ctx context.Context, ref string, amount decimal.Decimal) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	switch {
	case strings.HasPrefix(ref, "fail_"):
		return false, errors.Errorf("provider unavailable for %s", ref)
	case strings.HasPrefix(ref, "declined_"), ref == "", amount.IsNegative():
		return false, nil
	}
	return true, nil
}

// Refund succeeds once per reference.
func (p *SimulatedProvider) Refund(ctx context.Context, ref string) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	if strings.HasPrefix(ref, "fail_") {
		return false, errors.Errorf("provider unavailable for %s", ref)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refunded[ref] {
		return false, nil
	}
	p.refunded[ref] = true
	return true, nil
}

// Refunded reports whether ref has been refunded.
func (p *SimulatedProvider) Refunded(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refunded[ref]
}
