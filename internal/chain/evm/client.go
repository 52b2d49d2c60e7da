// Package evm implements the ledger's collaborator interfaces against EVM
// contracts over JSON-RPC: asset registries (ERC-1155 with optional ERC-2981
// royalties), the ERC-20 settlement currency, and native coin payouts. All
// outbound movement is signed by the operator key, which is also the
// ledger's custody address on chain.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient connection pinned to one chain.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the JSON-RPC endpoint and verifies it serves the expected
// chain.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}
	if wantChainID != 0 && chainID.Int64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("evm: endpoint serves chain %s, want %d", chainID, wantChainID)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
