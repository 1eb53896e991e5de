package service

import (
	"context"
	"errors"
	"testing"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryLedger_ReserveRelease(t *testing.T) {
	f := newFixture(t)
	p := f.product(nil, "1.00", 2)

	err := f.repo.WithTx(f.ctx, func(tx store.Tx) error {
		stock, err := f.ledger.Reserve(f.ctx, tx, p.ID, 2)
		require.NoError(t, err)
		assert.Zero(t, stock)

		_, err = f.ledger.Reserve(f.ctx, tx, p.ID, 1)
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

		_, err = f.ledger.Reserve(f.ctx, tx, p.ID, 0)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		stock, err = f.ledger.Release(f.ctx, tx, p.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, stock)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(p.ID))
}

func TestInventoryLedger_Restock(t *testing.T) {
	f := newFixture(t)
	seller := f.user("s@example.com", models.RoleSeller)
	other := f.user("o@example.com", models.RoleSeller)
	admin := f.user("a@example.com", models.RoleAdmin)
	customer := f.user("c@example.com", models.RoleCustomer)
	p := f.product(&seller, "1.00", 1)

	got, err := f.ledger.Restock(f.ctx, seller, access.AsSeller, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)
	assert.Equal(t, 5, f.mirror.stock[p.ID])

	_, err = f.ledger.Restock(f.ctx, other, access.AsSeller, p.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = f.ledger.Restock(f.ctx, customer, access.AsCustomer, p.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = f.ledger.Restock(f.ctx, admin, access.AsAdmin, p.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.ledger.Restock(f.ctx, admin, access.AsAdmin, 404, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err = f.ledger.Restock(f.ctx, admin, access.AsAdmin, p.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 15, got.StockQuantity)
	assert.Equal(t, 15, f.stock(p.ID))
}

func TestInventoryLedger_Availability(t *testing.T) {
	f := newFixture(t)
	p := f.product(nil, "1.00", 3)

	a, err := f.ledger.Availability(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "database", a.Source)
	assert.Equal(t, 3, a.StockQuantity)
	assert.True(t, a.InStock)

	a, err = f.ledger.Availability(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cache", a.Source)
	assert.Equal(t, 3, a.StockQuantity)

	// a broken mirror never breaks reads or writes
	f.mirror.fail = true
	a, err = f.ledger.Availability(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "database", a.Source)

	customer := f.user("c@example.com", models.RoleCustomer)
	f.placeOrder(customer, line(p.ID, 3))
	assert.Equal(t, 0, f.stock(p.ID))

	f.mirror.fail = false
	a, err = f.ledger.Availability(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cache", a.Source)
	assert.Equal(t, 3, a.StockQuantity, "stale until the next commit refreshes it")

	_, err = f.ledger.Availability(f.ctx, 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInventoryLedger_NilMirror(t *testing.T) {
	repo := store.NewMemoryStore()
	ledger := NewInventoryLedger(repo, nil)
	p := &models.Product{Name: "x", StockQuantity: 0, Active: true}
	require.NoError(t, repo.CreateProduct(context.Background(), p))

	a, err := ledger.Availability(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, a.InStock)
	ledger.Refresh(context.Background(), p.ID)
}

type brokenCatalog struct {
	*store.MemoryStore
}

func (brokenCatalog) GetProductsByIDs(context.Context, []int64) ([]models.Product, error) {
	return nil, errors.New("catalog unavailable")
}

func TestInventoryLedger_RefreshFailureInvalidatesMirror(t *testing.T) {
	repo := store.NewMemoryStore()
	mirror := newFakeMirror()
	require.NoError(t, mirror.SetStock(context.Background(), 1, 9, true))

	ledger := NewInventoryLedger(brokenCatalog{repo}, mirror)
	ledger.Refresh(context.Background(), 1)

	_, _, err := mirror.GetStock(context.Background(), 1)
	assert.Error(t, err)
}
