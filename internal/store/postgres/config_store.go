package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// Config row names.
const (
	configFees      = "fees"
	configWhitelist = "whitelist"
	configBalances  = "balances"
)

// ConfigStore persists fee configuration, the registry whitelist, and the
// custody balance totals as name-keyed JSON documents.
type ConfigStore struct {
	pool *pgxpool.Pool
}

func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

func (s *ConfigStore) save(ctx context.Context, name string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("postgres: marshal config %s: %w", name, err)
	}

	const query = `
		INSERT INTO ledger_config (name, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			payload    = EXCLUDED.payload,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, name, payload); err != nil {
		return fmt.Errorf("postgres: save config %s: %w", name, err)
	}
	return nil
}

func (s *ConfigStore) load(ctx context.Context, name string) ([]byte, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM ledger_config WHERE name = $1`, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: load config %s: %w", name, err)
	}
	return payload, true, nil
}

func (s *ConfigStore) SaveFees(ctx context.Context, cfg domain.FeeConfig) error {
	return s.save(ctx, configFees, cfg)
}

func (s *ConfigStore) LoadFees(ctx context.Context) (domain.FeeConfig, bool, error) {
	payload, ok, err := s.load(ctx, configFees)
	if err != nil || !ok {
		return domain.FeeConfig{}, false, err
	}
	cfg, err := domain.DecodeFeeConfig(payload)
	if err != nil {
		return domain.FeeConfig{}, false, fmt.Errorf("postgres: decode fee config: %w", err)
	}
	return cfg, true, nil
}

func (s *ConfigStore) SaveWhitelist(ctx context.Context, refs []common.Address) error {
	hexes := make([]string, len(refs))
	for i, ref := range refs {
		hexes[i] = ref.Hex()
	}
	return s.save(ctx, configWhitelist, hexes)
}

func (s *ConfigStore) LoadWhitelist(ctx context.Context) ([]common.Address, error) {
	payload, ok, err := s.load(ctx, configWhitelist)
	if err != nil || !ok {
		return nil, err
	}
	var hexes []string
	if err := json.Unmarshal(payload, &hexes); err != nil {
		return nil, fmt.Errorf("postgres: decode whitelist: %w", err)
	}
	refs := make([]common.Address, len(hexes))
	for i, h := range hexes {
		refs[i] = common.HexToAddress(h)
	}
	return refs, nil
}

type balancesDoc struct {
	Native string `json:"native"`
	Token  string `json:"token"`
}

func (s *ConfigStore) SaveBalances(ctx context.Context, native, token *big.Int) error {
	return s.save(ctx, configBalances, balancesDoc{
		Native: native.String(),
		Token:  token.String(),
	})
}

func (s *ConfigStore) LoadBalances(ctx context.Context) (*big.Int, *big.Int, bool, error) {
	payload, ok, err := s.load(ctx, configBalances)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	var doc balancesDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, nil, false, fmt.Errorf("postgres: decode balances: %w", err)
	}
	native, okN := new(big.Int).SetString(doc.Native, 10)
	token, okT := new(big.Int).SetString(doc.Token, 10)
	if !okN || !okT {
		return nil, nil, false, fmt.Errorf("postgres: malformed balances %q/%q", doc.Native, doc.Token)
	}
	return native, token, true, nil
}
