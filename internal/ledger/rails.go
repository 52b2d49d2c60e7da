package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// paymentRail gives both settlement mechanisms one collect/pay surface so
// the settlement engine never branches on the payment option at a call site.
type paymentRail interface {
	// collect takes total from the payer into ledger custody. attached is
	// the native value escrowed with the call; rails that do not use it
	// ignore it. It returns the excess to refund to the payer.
	collect(ctx context.Context, payer common.Address, attached, total *big.Int) (excess *big.Int, err error)

	// pay sends amount from ledger custody to the recipient. A zero amount
	// is a no-op.
	pay(ctx context.Context, recipient common.Address, amount *big.Int) error
}

// nativeRail settles in the chain's native coin. Inbound value arrives
// attached to the call; outbound value moves through the treasury.
type nativeRail struct {
	treasury domain.NativeTreasury
}

func (r nativeRail) collect(ctx context.Context, payer common.Address, attached, total *big.Int) (*big.Int, error) {
	if attached == nil {
		attached = new(big.Int)
	}
	if attached.Cmp(total) < 0 {
		return nil, domain.ErrInsufficientNativePayment
	}
	// The attached value is already in ledger custody; only the excess
	// moves, back to the payer.
	return new(big.Int).Sub(attached, total), nil
}

func (r nativeRail) pay(ctx context.Context, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := r.treasury.Pay(ctx, recipient, amount); err != nil {
		return fmt.Errorf("native pay %s: %w: %w", recipient.Hex(), domain.ErrTransferFailed, err)
	}
	return nil
}

// tokenRail settles in the ERC-20 settlement currency, pulling funds from
// the buyer via a prior allowance.
type tokenRail struct {
	currency domain.SettlementCurrency
	self     common.Address
}

func (r tokenRail) collect(ctx context.Context, payer common.Address, _, total *big.Int) (*big.Int, error) {
	balance, err := r.currency.BalanceOf(ctx, payer)
	if err != nil {
		return nil, fmt.Errorf("token balance %s: %w: %w", payer.Hex(), domain.ErrTransferFailed, err)
	}
	if balance.Cmp(total) < 0 {
		return nil, domain.ErrInsufficientTokenFunds
	}
	if err := r.currency.TransferFrom(ctx, payer, r.self, total); err != nil {
		return nil, fmt.Errorf("token pull %s: %w: %w", payer.Hex(), domain.ErrTransferFailed, err)
	}
	return new(big.Int), nil
}

func (r tokenRail) pay(ctx context.Context, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := r.currency.Transfer(ctx, recipient, amount); err != nil {
		return fmt.Errorf("token pay %s: %w: %w", recipient.Hex(), domain.ErrTransferFailed, err)
	}
	return nil
}

// railFor returns the rail for a payment option or currency.
func (l *Ledger) railFor(option domain.PaymentOption) paymentRail {
	if option == domain.PaymentToken {
		return tokenRail{currency: l.collab.Currency, self: l.collab.Self}
	}
	return nativeRail{treasury: l.collab.Treasury}
}

func (l *Ledger) railForCurrency(currency domain.Currency) paymentRail {
	if currency == domain.CurrencyToken {
		return tokenRail{currency: l.collab.Currency, self: l.collab.Self}
	}
	return nativeRail{treasury: l.collab.Treasury}
}
