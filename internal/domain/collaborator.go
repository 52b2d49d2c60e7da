package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the custody surface of one whitelisted asset contract.
// The ledger never tracks asset balances itself; it queries and moves units
// through this capability.
type AssetRegistry interface {
	// BalanceOf returns how many units of tokenID the holder owns.
	BalanceOf(ctx context.Context, holder common.Address, tokenID *big.Int) (*big.Int, error)

	// CustodyTransfer moves quantity units of tokenID between principals.
	CustodyTransfer(ctx context.Context, from, to common.Address, tokenID *big.Int, quantity uint64) error

	// RoyaltyInfo returns the royalty recipient and amount for a sale at
	// salePrice. supported is false when the registry does not expose a
	// royalty capability, in which case no royalty is due.
	RoyaltyInfo(ctx context.Context, tokenID *big.Int, salePrice *big.Int) (recipient common.Address, amount *big.Int, supported bool, err error)
}

// CreatorLookup is an optional AssetRegistry extension exposing the original
// minter of a token. Callers probe for it with a type assertion.
type CreatorLookup interface {
	Creator(ctx context.Context, tokenID *big.Int) (common.Address, error)
}

// AssetRegistryResolver maps a whitelisted registry reference to its custody
// capability.
type AssetRegistryResolver interface {
	Registry(ref common.Address) (AssetRegistry, error)
}

// SettlementCurrency is the ERC-20 style fungible ledger used by the token
// payment rail. TransferFrom is gated by an allowance the holder set ahead
// of time; Transfer spends the market ledger's own balance.
type SettlementCurrency interface {
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// NativeTreasury pays out native coin held by the market ledger. Inbound
// native value arrives attached to the call that needs it; only outbound
// movement goes through this capability.
type NativeTreasury interface {
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
}

// RoleAdmin gates fee changes, whitelisting, and fee withdrawal.
const RoleAdmin = "admin"

// RoleChecker answers whether a principal holds a capability role. It is
// backed by an injected membership set, not by the ledger itself.
type RoleChecker interface {
	HasRole(ctx context.Context, principal common.Address, role string) (bool, error)
}
