package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtvlabs/marketledger/internal/domain"
)

const itemTTL = 5 * time.Minute

// ItemCache implements domain.ItemCache using JSON-serialized listing
// snapshots keyed by item id. Postgres remains the source of truth; the
// cache only serves read paths, so entries expire rather than being kept
// coherent forever.
type ItemCache struct {
	rdb *redis.Client
}

// NewItemCache creates an ItemCache backed by the given Client.
func NewItemCache(c *Client) *ItemCache {
	return &ItemCache{rdb: c.Underlying()}
}

func itemKey(id uint64) string {
	return "item:" + strconv.FormatUint(id, 10)
}

// Set stores a listing snapshot with a 5-minute TTL.
func (ic *ItemCache) Set(ctx context.Context, item domain.MarketItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis: marshal item %d: %w", item.ItemID, err)
	}
	if err := ic.rdb.Set(ctx, itemKey(item.ItemID), data, itemTTL).Err(); err != nil {
		return fmt.Errorf("redis: set item %d: %w", item.ItemID, err)
	}
	return nil
}

// Get retrieves a listing snapshot by id. It returns ok=false on a miss.
func (ic *ItemCache) Get(ctx context.Context, itemID uint64) (domain.MarketItem, bool, error) {
	data, err := ic.rdb.Get(ctx, itemKey(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketItem{}, false, nil
		}
		return domain.MarketItem{}, false, fmt.Errorf("redis: get item %d: %w", itemID, err)
	}

	item, err := domain.DecodeItem(data)
	if err != nil {
		// A snapshot written by a newer build is treated as a miss so the
		// caller falls through to the store.
		if errors.Is(err, domain.ErrUnknownSchemaVersion) {
			return domain.MarketItem{}, false, nil
		}
		return domain.MarketItem{}, false, fmt.Errorf("redis: decode item %d: %w", itemID, err)
	}
	return item, true, nil
}

// Invalidate removes a listing snapshot from the cache.
func (ic *ItemCache) Invalidate(ctx context.Context, itemID uint64) error {
	if err := ic.rdb.Del(ctx, itemKey(itemID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate item %d: %w", itemID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ItemCache = (*ItemCache)(nil)
