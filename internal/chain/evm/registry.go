package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/crypto"
	"github.com/mtvlabs/marketledger/internal/domain"
)

// Registry adapts one ERC-1155 contract to domain.AssetRegistry. Custody
// transfers are signed by the operator, which holders approve as an operator
// on the contract before listing.
type Registry struct {
	client   *Client
	operator *crypto.Operator
	addr     common.Address

	mu       sync.Mutex
	royalty  bool
	probed   bool
}

// NewRegistry wraps the contract at addr.
func NewRegistry(client *Client, operator *crypto.Operator, addr common.Address) (*Registry, error) {
	if _, _, err := parsedABIs(); err != nil {
		return nil, err
	}
	return &Registry{client: client, operator: operator, addr: addr}, nil
}

// Address returns the wrapped contract address.
func (r *Registry) Address() common.Address {
	return r.addr
}

func (r *Registry) BalanceOf(ctx context.Context, holder common.Address, tokenID *big.Int) (*big.Int, error) {
	nftABI, _, err := parsedABIs()
	if err != nil {
		return nil, err
	}
	out, err := r.client.call(ctx, r.addr, nftABI, "balanceOf", holder, tokenID)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm: balanceOf returned %T", out[0])
	}
	return bal, nil
}

func (r *Registry) CustodyTransfer(ctx context.Context, from, to common.Address, tokenID *big.Int, quantity uint64) error {
	nftABI, _, err := parsedABIs()
	if err != nil {
		return err
	}
	return r.client.transact(ctx, r.operator, r.addr, nftABI,
		"safeTransferFrom", from, to, tokenID, new(big.Int).SetUint64(quantity), []byte{})
}

// RoyaltyInfo queries the contract's ERC-2981 surface. The supportsInterface
// probe result is cached for the registry's lifetime.
func (r *Registry) RoyaltyInfo(ctx context.Context, tokenID, salePrice *big.Int) (common.Address, *big.Int, bool, error) {
	nftABI, _, err := parsedABIs()
	if err != nil {
		return common.Address{}, nil, false, err
	}

	supported, err := r.supportsRoyalty(ctx)
	if err != nil {
		return common.Address{}, nil, false, err
	}
	if !supported {
		return common.Address{}, nil, false, nil
	}

	out, err := r.client.call(ctx, r.addr, nftABI, "royaltyInfo", tokenID, salePrice)
	if err != nil {
		return common.Address{}, nil, false, err
	}
	recipient, okAddr := out[0].(common.Address)
	amount, okAmt := out[1].(*big.Int)
	if !okAddr || !okAmt {
		return common.Address{}, nil, false, fmt.Errorf("evm: royaltyInfo returned %T, %T", out[0], out[1])
	}
	return recipient, amount, true, nil
}

func (r *Registry) supportsRoyalty(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.probed {
		supported := r.royalty
		r.mu.Unlock()
		return supported, nil
	}
	r.mu.Unlock()

	a, _, err := parsedABIs()
	if err != nil {
		return false, err
	}
	out, err := r.client.call(ctx, r.addr, a, "supportsInterface", royaltyInterfaceID)
	if err != nil {
		// Contracts predating ERC-165 revert here; treat as no royalty.
		r.mu.Lock()
		r.probed, r.royalty = true, false
		r.mu.Unlock()
		return false, nil
	}
	supported, _ := out[0].(bool)

	r.mu.Lock()
	r.probed, r.royalty = true, supported
	r.mu.Unlock()
	return supported, nil
}

// Creator returns the original minter of tokenID if the contract exposes a
// creator accessor.
func (r *Registry) Creator(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	nftABI, _, err := parsedABIs()
	if err != nil {
		return common.Address{}, err
	}
	out, err := r.client.call(ctx, r.addr, nftABI, "creator", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	creator, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("evm: creator returned %T", out[0])
	}
	return creator, nil
}

// Resolver hands out Registry adapters keyed by contract address, creating
// each one lazily and reusing it afterwards.
type Resolver struct {
	client   *Client
	operator *crypto.Operator

	mu         sync.Mutex
	registries map[common.Address]*Registry
}

// NewResolver creates a Resolver backed by the given connection and
// operator.
func NewResolver(client *Client, operator *crypto.Operator) *Resolver {
	return &Resolver{
		client:     client,
		operator:   operator,
		registries: make(map[common.Address]*Registry),
	}
}

func (rs *Resolver) Registry(ref common.Address) (domain.AssetRegistry, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if reg, ok := rs.registries[ref]; ok {
		return reg, nil
	}
	reg, err := NewRegistry(rs.client, rs.operator, ref)
	if err != nil {
		return nil, err
	}
	rs.registries[ref] = reg
	return reg, nil
}

var (
	_ domain.AssetRegistry         = (*Registry)(nil)
	_ domain.CreatorLookup         = (*Registry)(nil)
	_ domain.AssetRegistryResolver = (*Resolver)(nil)
)
