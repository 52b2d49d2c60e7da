package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// ItemStore implements domain.ItemStore using PostgreSQL. Big-number columns
// are stored as decimal strings so amounts at 1e18 scale never lose
// precision in transit.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

// Upsert inserts or updates a single listing record.
func (s *ItemStore) Upsert(ctx context.Context, m domain.MarketItem) error {
	const query = `
		INSERT INTO market_items (
			item_id, schema_version, token_id, asset_registry, seller,
			items_available, items_sold, price_per_item, payment_option,
			deposit_fee, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12
		)
		ON CONFLICT (item_id) DO UPDATE SET
			schema_version  = EXCLUDED.schema_version,
			items_available = EXCLUDED.items_available,
			items_sold      = EXCLUDED.items_sold,
			deposit_fee     = EXCLUDED.deposit_fee,
			updated_at      = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		int64(m.ItemID), m.SchemaVersion, m.TokenID.String(),
		m.AssetRegistry.Hex(), m.Seller.Hex(),
		int64(m.ItemsAvailable), int64(m.ItemsSold),
		m.PricePerItem.String(), int16(m.PaymentOption),
		m.DepositFee.String(), nullableTime(m.CreatedAt), nullableTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert item %d: %w", m.ItemID, err)
	}
	return nil
}

// Get returns the listing record for itemID.
func (s *ItemStore) Get(ctx context.Context, itemID uint64) (domain.MarketItem, error) {
	const query = `
		SELECT item_id, schema_version, token_id, asset_registry, seller,
		       items_available, items_sold, price_per_item, payment_option,
		       deposit_fee, created_at, updated_at
		FROM market_items
		WHERE item_id = $1`

	row := s.pool.QueryRow(ctx, query, int64(itemID))
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketItem{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("postgres: get item %d: %w", itemID, err)
	}
	return item, nil
}

// List returns every listing record.
func (s *ItemStore) List(ctx context.Context) ([]domain.MarketItem, error) {
	const query = `
		SELECT item_id, schema_version, token_id, asset_registry, seller,
		       items_available, items_sold, price_per_item, payment_option,
		       deposit_fee, created_at, updated_at
		FROM market_items
		ORDER BY item_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list items: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list items: %w", err)
	}
	return out, nil
}

// CurrentID returns the highest allocated item id, zero when the table is
// empty.
func (s *ItemStore) CurrentID(ctx context.Context) (uint64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(item_id), 0) FROM market_items`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: current item id: %w", err)
	}
	return uint64(id), nil
}

// scanItem reads one market_items row. Rows written under layout v1 carry
// NULL timestamps; those decode to zero times.
func scanItem(row pgx.Row) (domain.MarketItem, error) {
	var (
		itemID, available, sold int64
		version                 int
		tokenID, registry       string
		seller, price, deposit  string
		option                  int16
		createdAt, updatedAt    *time.Time
	)
	if err := row.Scan(
		&itemID, &version, &tokenID, &registry, &seller,
		&available, &sold, &price, &option,
		&deposit, &createdAt, &updatedAt,
	); err != nil {
		return domain.MarketItem{}, err
	}

	token, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return domain.MarketItem{}, fmt.Errorf("malformed token_id %q", tokenID)
	}
	priceAmount, ok := new(big.Int).SetString(price, 10)
	if !ok {
		return domain.MarketItem{}, fmt.Errorf("malformed price_per_item %q", price)
	}
	depositAmount, ok := new(big.Int).SetString(deposit, 10)
	if !ok {
		return domain.MarketItem{}, fmt.Errorf("malformed deposit_fee %q", deposit)
	}

	item := domain.MarketItem{
		SchemaVersion:  version,
		ItemID:         uint64(itemID),
		TokenID:        token,
		AssetRegistry:  common.HexToAddress(registry),
		Seller:         common.HexToAddress(seller),
		ItemsAvailable: uint64(available),
		ItemsSold:      uint64(sold),
		PricePerItem:   priceAmount,
		PaymentOption:  domain.PaymentOption(option),
		DepositFee:     depositAmount,
	}
	if createdAt != nil {
		item.CreatedAt = *createdAt
	}
	if updatedAt != nil {
		item.UpdatedAt = *updatedAt
	}
	return item, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
