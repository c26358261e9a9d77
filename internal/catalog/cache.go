package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeItemsKey = "catalog:items:active"

// Cache holds the full active-item listing in Redis. It caches exactly one
// value; category filters go to the store directly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds an item cache. A nil client means every lookup misses.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetItems returns the cached listing and whether it was present. Redis
// errors are reported as a miss so reads fall through to the store.
func (c *Cache) GetItems(ctx context.Context) ([]Item, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, activeItemsKey).Bytes()
	if err != nil {
		return nil, false
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// SetItems stores the listing with the configured TTL.
func (c *Cache) SetItems(ctx context.Context, items []Item) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeItemsKey, raw, c.ttl).Err()
}
