package redisclient

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockMirror(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis")
	}

	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	const productID = 987654

	require.NoError(t, c.InvalidateStock(ctx, productID))
	_, _, err = c.GetStock(ctx, productID)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.SetStock(ctx, productID, 3, true))
	stock, active, err := c.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
	assert.True(t, active)

	require.NoError(t, c.SetStock(ctx, productID, 0, false))
	stock, active, err = c.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Zero(t, stock)
	assert.False(t, active)
}

func TestStockKey(t *testing.T) {
	assert.Equal(t, "inventory:42", stockKey(42))
}
