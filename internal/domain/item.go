// Package domain defines the core types, errors, and collaborator interfaces
// for the market ledger: listings, fee configuration, events, and the storage
// and chain capabilities the ledger consumes.
package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentOption selects the settlement rail for a listing. It is fixed at
// creation and immutable afterwards.
type PaymentOption uint8

const (
	// PaymentNative settles in the chain's native coin, attached to the call.
	PaymentNative PaymentOption = iota
	// PaymentToken settles in the configured ERC-20 settlement currency,
	// pulled from the buyer via a prior allowance.
	PaymentToken
)

// Valid reports whether p is a known payment option.
func (p PaymentOption) Valid() bool {
	return p == PaymentNative || p == PaymentToken
}

func (p PaymentOption) String() string {
	switch p {
	case PaymentNative:
		return "native"
	case PaymentToken:
		return "token"
	default:
		return fmt.Sprintf("payment_option(%d)", uint8(p))
	}
}

// Currency identifies a platform balance for fee withdrawal.
type Currency uint8

const (
	CurrencyNative Currency = iota
	CurrencyToken
)

// Valid reports whether c is a known currency.
func (c Currency) Valid() bool {
	return c == CurrencyNative || c == CurrencyToken
}

func (c Currency) String() string {
	switch c {
	case CurrencyNative:
		return "native"
	case CurrencyToken:
		return "token"
	default:
		return fmt.Sprintf("currency(%d)", uint8(c))
	}
}

// ItemSchemaVersion is the current MarketItem record layout version. The
// layout is append-only: fields are never removed, retyped, or reordered, so
// a record written under any version <= ItemSchemaVersion decodes without
// migration. Version history:
//
//	v1: core listing fields.
//	v2: adds CreatedAt/UpdatedAt trailing timestamps.
const ItemSchemaVersion = 2

// MarketItem is one listing record. Records are never deleted; a depleted
// item (ItemsAvailable == 0) is terminal, and re-listing the same token
// always allocates a new item id.
type MarketItem struct {
	SchemaVersion  int            `json:"schema_version"`
	ItemID         uint64         `json:"item_id"`
	TokenID        *big.Int       `json:"token_id"`
	AssetRegistry  common.Address `json:"asset_registry"`
	Seller         common.Address `json:"seller"`
	ItemsAvailable uint64         `json:"items_available"`
	ItemsSold      uint64         `json:"items_sold"`
	PricePerItem   *big.Int       `json:"price_per_item"`
	PaymentOption  PaymentOption  `json:"payment_option"`
	// DepositFee is the amount currently escrowed for this listing. It is
	// zeroed exactly once, when ItemsAvailable reaches zero.
	DepositFee *big.Int `json:"deposit_fee"`

	// v2 fields.
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Depleted reports whether the listing has reached its terminal state.
func (m MarketItem) Depleted() bool {
	return m.ItemsAvailable == 0
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the ledger's authoritative record.
func (m MarketItem) Clone() MarketItem {
	out := m
	if m.TokenID != nil {
		out.TokenID = new(big.Int).Set(m.TokenID)
	}
	if m.PricePerItem != nil {
		out.PricePerItem = new(big.Int).Set(m.PricePerItem)
	}
	if m.DepositFee != nil {
		out.DepositFee = new(big.Int).Set(m.DepositFee)
	}
	return out
}

// DecodeItem unmarshals a persisted MarketItem written under the current or
// any earlier schema version, filling fields that did not exist yet with
// their zero defaults.
func DecodeItem(data []byte) (MarketItem, error) {
	var m MarketItem
	if err := json.Unmarshal(data, &m); err != nil {
		return MarketItem{}, fmt.Errorf("domain: decode item: %w", err)
	}
	if m.SchemaVersion < 1 || m.SchemaVersion > ItemSchemaVersion {
		return MarketItem{}, fmt.Errorf("domain: decode item: %w: version %d", ErrUnknownSchemaVersion, m.SchemaVersion)
	}
	return m, nil
}

// FeeSchemaVersion is the current FeeConfig layout version.
const FeeSchemaVersion = 1

// MaxServiceFeeBps caps the platform cut at 10% of the sale amount.
const MaxServiceFeeBps = 1000

// BpsDenominator is the basis-point scale used for fee and royalty math.
const BpsDenominator = 10000

// FeeConfig holds the current deposit-fee amount and service-fee rate.
// DepositFee applies to listings created after a change, never retroactively.
type FeeConfig struct {
	SchemaVersion int      `json:"schema_version"`
	DepositFee    *big.Int `json:"deposit_fee"`
	ServiceFeeBps uint32   `json:"service_fee_bps"`
}

// Clone returns a deep copy of the fee configuration.
func (f FeeConfig) Clone() FeeConfig {
	out := f
	if f.DepositFee != nil {
		out.DepositFee = new(big.Int).Set(f.DepositFee)
	}
	return out
}

// DecodeFeeConfig unmarshals a persisted FeeConfig, tolerating records
// written under earlier versions.
func DecodeFeeConfig(data []byte) (FeeConfig, error) {
	var f FeeConfig
	if err := json.Unmarshal(data, &f); err != nil {
		return FeeConfig{}, fmt.Errorf("domain: decode fee config: %w", err)
	}
	if f.SchemaVersion < 1 || f.SchemaVersion > FeeSchemaVersion {
		return FeeConfig{}, fmt.Errorf("domain: decode fee config: %w: version %d", ErrUnknownSchemaVersion, f.SchemaVersion)
	}
	return f, nil
}
