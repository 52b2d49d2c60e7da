// Package ledger implements the marketplace core: the listing registry, the
// settlement engine, fee configuration, the registry whitelist, and the admin
// access gate. Every public operation runs as one serialized transaction
// against the shared ledger state; external collaborator transfers complete
// (or fail) before any internal mutation is committed.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// Collaborators bundles the external capabilities the ledger settles
// against. Assets, Currency, Treasury, and Roles are required; the ledger
// never moves value without them.
type Collaborators struct {
	Assets   domain.AssetRegistryResolver
	Currency domain.SettlementCurrency
	Treasury domain.NativeTreasury
	Roles    domain.RoleChecker
	// Self is the principal under which the ledger holds custody of listed
	// units and collected payments.
	Self common.Address
}

// Persistence bundles the optional storage and fan-out dependencies. Any nil
// field is skipped; the ledger stays authoritative in memory either way.
type Persistence struct {
	Items  domain.ItemStore
	Config domain.LedgerConfigStore
	Events domain.EventStore
	Bus    domain.EventBus
	Cache  domain.ItemCache
}

// Ledger is the shared marketplace state machine. All exported methods are
// safe for concurrent use; a single mutex serializes every operation so no
// two callers ever interleave their effects.
type Ledger struct {
	mu sync.Mutex

	items     map[uint64]*domain.MarketItem
	counter   uint64
	whitelist []common.Address
	inList    map[common.Address]bool
	fees      domain.FeeConfig

	// Total custody held by the ledger per rail. The withdrawable platform
	// balance is derived: nativeHeld minus the sum of outstanding deposits
	// for the native rail, tokenHeld as-is for the token rail.
	nativeHeld *big.Int
	tokenHeld  *big.Int

	collab   Collaborators
	persist  Persistence
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	restored bool
}

// New creates an empty ledger with the given collaborators, persistence, and
// initial fee configuration.
func New(collab Collaborators, persist Persistence, fees domain.FeeConfig, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if fees.DepositFee == nil {
		fees.DepositFee = new(big.Int)
	}
	fees.SchemaVersion = domain.FeeSchemaVersion
	return &Ledger{
		items:      make(map[uint64]*domain.MarketItem),
		inList:     make(map[common.Address]bool),
		fees:       fees,
		nativeHeld: new(big.Int),
		tokenHeld:  new(big.Int),
		collab:     collab,
		persist:    persist,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Restore rehydrates the ledger from its persistence layer: item records,
// the id counter, fee configuration, whitelist, and held balances written by
// this or any earlier logic revision. It may be called at most once, before
// the ledger serves traffic.
func (l *Ledger) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.restored {
		return domain.ErrAlreadyInitialized
	}
	l.restored = true

	if l.persist.Items != nil {
		items, err := l.persist.Items.List(ctx)
		if err != nil {
			return fmt.Errorf("ledger: restore items: %w", err)
		}
		for _, it := range items {
			rec := it.Clone()
			l.items[rec.ItemID] = &rec
		}
		counter, err := l.persist.Items.CurrentID(ctx)
		if err != nil {
			return fmt.Errorf("ledger: restore counter: %w", err)
		}
		l.counter = counter
	}

	if l.persist.Config != nil {
		fees, ok, err := l.persist.Config.LoadFees(ctx)
		if err != nil {
			return fmt.Errorf("ledger: restore fees: %w", err)
		}
		if ok {
			l.fees = fees.Clone()
		}

		refs, err := l.persist.Config.LoadWhitelist(ctx)
		if err != nil {
			return fmt.Errorf("ledger: restore whitelist: %w", err)
		}
		for _, ref := range refs {
			if !l.inList[ref] {
				l.inList[ref] = true
				l.whitelist = append(l.whitelist, ref)
			}
		}

		native, token, ok, err := l.persist.Config.LoadBalances(ctx)
		if err != nil {
			return fmt.Errorf("ledger: restore balances: %w", err)
		}
		if ok {
			l.nativeHeld.Set(native)
			l.tokenHeld.Set(token)
		}
	}

	l.logger.Info("ledger restored",
		slog.Uint64("items", uint64(len(l.items))),
		slog.Uint64("counter", l.counter),
		slog.Int("whitelist", len(l.whitelist)),
	)
	return nil
}

// Item returns a snapshot of the listing record for itemID.
func (l *Ledger) Item(itemID uint64) (domain.MarketItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.items[itemID]
	if !ok {
		return domain.MarketItem{}, domain.ErrItemNotFound
	}
	return rec.Clone(), nil
}

// Items returns snapshots of every listing record, ordered by item id.
func (l *Ledger) Items() []domain.MarketItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.MarketItem, 0, len(l.items))
	for _, rec := range l.items {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// CurrentItemID returns the most recently allocated item id, zero when no
// listing has been created yet.
func (l *Ledger) CurrentItemID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counter
}

// WhitelistedRegistries returns the registry whitelist in insertion order.
func (l *Ledger) WhitelistedRegistries() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]common.Address, len(l.whitelist))
	copy(out, l.whitelist)
	return out
}

// DepositFee returns the deposit amount required for new listings.
func (l *Ledger) DepositFee() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.fees.DepositFee)
}

// ServiceFeeBps returns the current platform fee rate in basis points.
func (l *Ledger) ServiceFeeBps() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fees.ServiceFeeBps
}

// Fees returns a snapshot of the fee configuration.
func (l *Ledger) Fees() domain.FeeConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fees.Clone()
}

// PlatformBalance returns the withdrawable platform balance for the given
// currency: total native custody minus outstanding deposits, or the full
// token custody (no deposits are held on the token rail).
func (l *Ledger) PlatformBalance(currency domain.Currency) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !currency.Valid() {
		return nil, domain.ErrInvalidPaymentOption
	}
	return l.availableBalance(currency), nil
}

// availableBalance computes the withdrawable balance for a currency.
// Callers must hold l.mu.
func (l *Ledger) availableBalance(currency domain.Currency) *big.Int {
	if currency == domain.CurrencyToken {
		return new(big.Int).Set(l.tokenHeld)
	}
	avail := new(big.Int).Set(l.nativeHeld)
	for _, rec := range l.items {
		if rec.ItemsAvailable > 0 && rec.DepositFee != nil {
			avail.Sub(avail, rec.DepositFee)
		}
	}
	return avail
}

// registryFor resolves the custody capability for a whitelisted reference.
func (l *Ledger) registryFor(ref common.Address) (domain.AssetRegistry, error) {
	reg, err := l.collab.Assets.Registry(ref)
	if err != nil {
		return nil, fmt.Errorf("ledger: resolve registry %s: %w", ref.Hex(), err)
	}
	return reg, nil
}

// persistItem writes the committed record through the store and refreshes
// the cache. Persistence failures do not undo the committed operation; they
// are surfaced in the log for operator attention.
func (l *Ledger) persistItem(ctx context.Context, rec domain.MarketItem) {
	if l.persist.Items != nil {
		if err := l.persist.Items.Upsert(ctx, rec); err != nil {
			l.logger.Error("persist item failed",
				slog.Uint64("item_id", rec.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
	if l.persist.Cache != nil {
		if err := l.persist.Cache.Set(ctx, rec); err != nil {
			l.logger.Warn("cache item failed",
				slog.Uint64("item_id", rec.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// persistBalances writes the ledger's custody totals through the config
// store.
func (l *Ledger) persistBalances(ctx context.Context) {
	if l.persist.Config == nil {
		return
	}
	if err := l.persist.Config.SaveBalances(ctx, l.nativeHeld, l.tokenHeld); err != nil {
		l.logger.Error("persist balances failed", slog.String("error", err.Error()))
	}
}
