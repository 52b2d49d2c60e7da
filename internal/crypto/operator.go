package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Operator holds the secp256k1 key the ledger signs custody and payout
// transactions with. The derived address is also the ledger's on-chain
// identity: deposits and token pulls land on it.
type Operator struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewOperator resolves a private key from cfg and wraps it as an Operator.
func NewOperator(cfg KeyConfig) (*Operator, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid operator key: %w", err)
	}
	return &Operator{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the operator's private key.
func (o *Operator) Address() common.Address {
	return o.address
}

// TransactOpts returns signing options bound to chainID for use with
// contract calls that submit transactions.
func (o *Operator) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(o.privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("crypto: transactor for chain %s: %w", chainID, err)
	}
	return opts, nil
}

// PrivateKey exposes the raw key for components that sign outside of
// bind.TransactOpts, such as plain value transfers.
func (o *Operator) PrivateKey() *ecdsa.PrivateKey {
	return o.privateKey
}
