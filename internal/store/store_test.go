package store

import (
	"context"
	"os"
	"testing"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIntegrationStore connects to TEST_DATABASE_URL and skips otherwise.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestCreateOrder(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	user := &models.User{FirstName: "Int", LastName: "Test", Email: "int-" + t.Name() + "@example.com",
		PasswordHash: "x", Roles: models.Roles{models.RoleCustomer}, Enabled: true}
	if err := store.CreateUser(ctx, user); err != nil {
		existing, getErr := store.GetUserByEmail(ctx, user.Email)
		require.NoError(t, getErr)
		user = existing
	}

	product := &models.Product{Name: "Integration", Price: decimal.RequireFromString("10.00"), StockQuantity: 5, Active: true}
	require.NoError(t, store.CreateProduct(ctx, product))

	order := newOrder(user.ID, models.OrderItem{ProductID: product.ID, Quantity: 2, PriceAtOrder: product.Price})
	order.TotalAmount = order.ComputeTotal()

	err := store.WithTx(ctx, func(tx Tx) error {
		locked, err := tx.LockProducts(ctx, []int64{product.ID})
		if err != nil {
			return err
		}
		require.Len(t, locked, 1)
		if _, err := tx.AdjustStock(ctx, product.ID, -2); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)

	retrieved, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.UserID, retrieved.UserID)
	assert.True(t, order.TotalAmount.Equal(retrieved.TotalAmount))
	require.Len(t, retrieved.Items, 1)
	assert.Equal(t, "Integration", retrieved.Items[0].ProductName)

	after, err := store.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.StockQuantity)
}

func TestAdjustStockConflict(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	product := &models.Product{Name: "Scarce", Price: decimal.RequireFromString("1.00"), StockQuantity: 1, Active: true}
	require.NoError(t, store.CreateProduct(ctx, product))

	err := store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.AdjustStock(ctx, product.ID, -2)
		return err
	})
	assert.ErrorIs(t, err, ErrStockConflict)

	_, err = store.GetOrderByID(ctx, -1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
