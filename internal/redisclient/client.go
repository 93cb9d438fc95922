package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/fulfill_stock.lua
var fulfillStockScript string

// Client mirrors the authoritative hub_stock counters for fast availability
// reads. The database commit always happens first; the mirror is refreshed
// afterwards, so a stale mirror can only cause an extra database check.
type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	fulfillScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		fulfillScript: redis.NewScript(fulfillStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(hubID, productID int64) string {
	return fmt.Sprintf("hub_stock:%d:%d", hubID, productID)
}

// ReserveStock decrements the mirrored available counter if it covers the
// quantity. Returns false when the mirror reports insufficient stock.
func (c *Client) ReserveStock(ctx context.Context, hubID, productID int64, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(hubID, productID)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	ok, valid := result.(int64)
	if !valid {
		return false, fmt.Errorf("unexpected script result type %T", result)
	}
	return ok == 1, nil
}

// ReleaseStock credits the mirrored available counter, capped at total
func (c *Client) ReleaseStock(ctx context.Context, hubID, productID int64, quantity int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(hubID, productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// FulfillStock decrements the mirrored total counter
func (c *Client) FulfillStock(ctx context.Context, hubID, productID int64, quantity int) error {
	_, err := c.fulfillScript.Run(ctx, c.rdb, []string{stockKey(hubID, productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("fulfill stock script failed: %w", err)
	}
	return nil
}

// SetStock overwrites the mirrored counters with authoritative values
func (c *Client) SetStock(ctx context.Context, hubID, productID int64, total, available int) error {
	pipe := c.rdb.Pipeline()
	key := stockKey(hubID, productID)
	pipe.HSet(ctx, key, "total", total)
	pipe.HSet(ctx, key, "available", available)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock retrieves the mirrored counters
func (c *Client) GetStock(ctx context.Context, hubID, productID int64) (total, available int, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(hubID, productID)).Result()
	if err != nil {
		return 0, 0, err
	}
	if len(result) == 0 {
		return 0, 0, fmt.Errorf("stock not mirrored for hub %d product %d", hubID, productID)
	}

	total, _ = strconv.Atoi(result["total"])
	available, _ = strconv.Atoi(result["available"])
	return total, available, nil
}
