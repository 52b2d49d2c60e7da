package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mtvlabs/marketledger/internal/crypto"
	"github.com/mtvlabs/marketledger/internal/domain"
)

// nativeTransferGas is the intrinsic gas cost of a plain value transfer to
// an externally owned account. Contract recipients need an estimate instead.
const nativeTransferGas = 21000

// Treasury pays native coin out of the operator account, which holds the
// deposits and native sale proceeds attached to inbound calls.
type Treasury struct {
	client   *Client
	operator *crypto.Operator
}

// NewTreasury creates a Treasury paying from the operator account.
func NewTreasury(client *Client, operator *crypto.Operator) *Treasury {
	return &Treasury{client: client, operator: operator}
}

// Pay sends amount of native coin to the recipient and waits for the
// transfer to be mined.
func (t *Treasury) Pay(ctx context.Context, to common.Address, amount *big.Int) error {
	from := t.operator.Address()

	nonce, err := t.client.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("evm: nonce for %s: %w", from, err)
	}
	gasPrice, err := t.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("evm: gas price: %w", err)
	}

	gasLimit := uint64(nativeTransferGas)
	if code, err := t.client.eth.PendingCodeAt(ctx, to); err == nil && len(code) > 0 {
		gasLimit, err = t.client.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: amount,
		})
		if err != nil {
			return fmt.Errorf("evm: estimate pay: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      gasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.client.chainID), t.operator.PrivateKey())
	if err != nil {
		return fmt.Errorf("evm: sign pay: %w", err)
	}
	if err := t.client.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("evm: send pay: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, t.client.eth, signed)
	if err != nil {
		return fmt.Errorf("evm: wait pay: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("evm: pay reverted in tx %s", signed.Hash())
	}
	return nil
}

var _ domain.NativeTreasury = (*Treasury)(nil)
