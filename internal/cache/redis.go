package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relove-be/internal/logger"
	"relove-be/internal/order"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client is a thin JSON cache over Redis. Used for catalog reads that
// sit on the hot path of every checkout quote.
type Client struct {
	rdb *redis.Client
}

func NewClient(addr string) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

func ProductKey(productID string) string {
	return "product:" + productID
}

// InvalidateProductsTask drops cached product entries after a paid order
// decrements their stock, so storefront reads stop serving stale counts.
func InvalidateProductsTask(c *Client) order.PostPaidTask {
	return order.PostPaidTask{
		Name: "cache_invalidate",
		Run: func(ctx context.Context, po *order.PaidOrder) error {
			keys := make([]string, 0, len(po.Order.Items))
			seen := map[string]bool{}
			for _, item := range po.Order.Items {
				if !seen[item.ProductID] {
					seen[item.ProductID] = true
					keys = append(keys, ProductKey(item.ProductID))
				}
			}

			if err := c.Del(ctx, keys...); err != nil {
				logger.FromCtx(ctx).Warn("product cache invalidation failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
