package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/crypto"
	"github.com/mtvlabs/marketledger/internal/domain"
)

// Currency adapts the ERC-20 settlement token to domain.SettlementCurrency.
// Transfer spends the operator's own balance; TransferFrom pulls against an
// allowance the holder granted the operator beforehand.
type Currency struct {
	client   *Client
	operator *crypto.Operator
	addr     common.Address
}

// NewCurrency wraps the ERC-20 contract at addr.
func NewCurrency(client *Client, operator *crypto.Operator, addr common.Address) (*Currency, error) {
	if _, _, err := parsedABIs(); err != nil {
		return nil, err
	}
	return &Currency{client: client, operator: operator, addr: addr}, nil
}

// Address returns the wrapped contract address.
func (c *Currency) Address() common.Address {
	return c.addr
}

func (c *Currency) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	_, tokenABI, err := parsedABIs()
	if err != nil {
		return nil, err
	}
	out, err := c.client.call(ctx, c.addr, tokenABI, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm: balanceOf returned %T", out[0])
	}
	return bal, nil
}

func (c *Currency) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	_, tokenABI, err := parsedABIs()
	if err != nil {
		return err
	}
	return c.client.transact(ctx, c.operator, c.addr, tokenABI, "transfer", to, amount)
}

func (c *Currency) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	_, tokenABI, err := parsedABIs()
	if err != nil {
		return err
	}
	return c.client.transact(ctx, c.operator, c.addr, tokenABI, "transferFrom", from, to, amount)
}

var _ domain.SettlementCurrency = (*Currency)(nil)
