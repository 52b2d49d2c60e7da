package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ItemStore persists listing records. Rows are append-only in layout: newer
// schema versions only add columns, so a build running an older revision can
// still read every row a newer one wrote, and vice versa.
type ItemStore interface {
	Upsert(ctx context.Context, item MarketItem) error
	Get(ctx context.Context, itemID uint64) (MarketItem, error)
	List(ctx context.Context) ([]MarketItem, error)
	CurrentID(ctx context.Context) (uint64, error)
}

// LedgerConfigStore persists the fee configuration and the registry
// whitelist across restarts and logic upgrades.
type LedgerConfigStore interface {
	SaveFees(ctx context.Context, cfg FeeConfig) error
	// LoadFees returns ok=false when no configuration has been written yet.
	LoadFees(ctx context.Context) (cfg FeeConfig, ok bool, err error)
	SaveWhitelist(ctx context.Context, refs []common.Address) error
	LoadWhitelist(ctx context.Context) ([]common.Address, error)
	// SaveBalances records the ledger's total native and token custody so a
	// restarted instance resumes with correct platform balances.
	SaveBalances(ctx context.Context, native, token *big.Int) error
	LoadBalances(ctx context.Context) (native, token *big.Int, ok bool, err error)
}

// EventStore journals ledger events for indexing and archival.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]Event, error)
}

// EventBus fans ledger events out to live subscribers. Publish is ephemeral
// pub/sub; StreamAppend is durable and ordered.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// ItemCache is a read-through cache for listing snapshots.
type ItemCache interface {
	Set(ctx context.Context, item MarketItem) error
	// Get returns ok=false on a cache miss.
	Get(ctx context.Context, itemID uint64) (item MarketItem, ok bool, err error)
	Invalidate(ctx context.Context, itemID uint64) error
}

// LockManager provides distributed locking, used to fence startup
// rehydration when several instances share one database.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter throttles callers under a sliding window.
type RateLimiter interface {
	// Allow reports whether a request under key is permitted, counting it
	// when permitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
