// Package redisclient keeps a read-side mirror of product stock in Redis.
// The database stays authoritative; the mirror is refreshed after commits
// and may lag behind or be missing entirely.
package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by GetStock when the product has no mirrored value.
var ErrMiss = redis.Nil

type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: time.Hour}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

// SetStock records the committed stock and active flag of a product.
func (c *Client) SetStock(ctx context.Context, productID int64, stock int, active bool) error {
	key := stockKey(productID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "available", stock, "active", strconv.FormatBool(active), "updated_at", time.Now().Unix())
	pipe.Expire(ctx, key, c.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock returns the mirrored stock and active flag, or ErrMiss if none is
// recorded.
func (c *Client) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	values, err := c.rdb.HMGet(ctx, stockKey(productID), "available", "active").Result()
	if err != nil {
		return 0, false, err
	}
	available, ok := values[0].(string)
	if !ok {
		return 0, false, ErrMiss
	}
	stock, err := strconv.Atoi(available)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock value for product %d: %w", productID, err)
	}
	active, _ := values[1].(string)
	return stock, active == "true", nil
}

// InvalidateStock drops the mirrored value so the next read falls back to
// the database.
func (c *Client) InvalidateStock(ctx context.Context, productID int64) error {
	return c.rdb.Del(ctx, stockKey(productID)).Err()
}
