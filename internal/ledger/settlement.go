package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// settlement is the computed split for one purchase. serviceFee + royalty +
// sellerPayout always equals total; floor-division remainders accrue to the
// seller payout.
type settlement struct {
	total            *big.Int
	serviceFee       *big.Int
	royalty          *big.Int
	royaltyRecipient common.Address
	sellerPayout     *big.Int
}

// splitPayment computes the fee and royalty split for a sale. Royalty is due
// only when the registry supports the lookup and names a recipient other
// than the seller; the rate is whatever the registry reports per call.
func splitPayment(ctx context.Context, registry domain.AssetRegistry, rec *domain.MarketItem, total *big.Int, serviceFeeBps uint32) (settlement, error) {
	s := settlement{
		total:      total,
		serviceFee: new(big.Int),
		royalty:    new(big.Int),
	}

	s.serviceFee.Mul(total, big.NewInt(int64(serviceFeeBps)))
	s.serviceFee.Div(s.serviceFee, big.NewInt(domain.BpsDenominator))

	recipient, amount, supported, err := registry.RoyaltyInfo(ctx, rec.TokenID, total)
	if err != nil {
		return settlement{}, fmt.Errorf("royalty info: %w: %w", domain.ErrTransferFailed, err)
	}
	if supported && recipient != rec.Seller && amount != nil && amount.Sign() > 0 {
		s.royalty.Set(amount)
		s.royaltyRecipient = recipient
	}

	s.sellerPayout = new(big.Int).Sub(total, s.serviceFee)
	s.sellerPayout.Sub(s.sellerPayout, s.royalty)
	if s.sellerPayout.Sign() < 0 {
		return settlement{}, fmt.Errorf("royalty exceeds payment: %w", domain.ErrAmountOverflow)
	}
	return s, nil
}

// BuyListing settles a purchase of quantity units from the listing. Payment
// is collected on the listing's rail (attached native value, or a token pull
// via allowance), split between platform fee, royalty, and seller payout,
// and the units move from ledger custody to the buyer. A purchase that
// empties the listing additionally releases the escrowed deposit to the
// seller. Excess attached native value is refunded to the buyer.
func (l *Ledger) BuyListing(ctx context.Context, itemID, quantity uint64, attached *big.Int, buyer common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.items[itemID]
	if !ok {
		return fmt.Errorf("ledger: buy: %w", domain.ErrItemNotFound)
	}
	if quantity == 0 {
		return fmt.Errorf("ledger: buy: %w", domain.ErrZeroQuantity)
	}
	if quantity > rec.ItemsAvailable {
		return fmt.Errorf("ledger: buy: %w", domain.ErrInsufficientInventory)
	}

	total := new(big.Int).Mul(rec.PricePerItem, new(big.Int).SetUint64(quantity))

	registry, err := l.registryFor(rec.AssetRegistry)
	if err != nil {
		return err
	}
	split, err := splitPayment(ctx, registry, rec, total, l.fees.ServiceFeeBps)
	if err != nil {
		return fmt.Errorf("ledger: buy: %w", err)
	}

	rail := l.railFor(rec.PaymentOption)

	// Collect first: nothing is owed to anyone until the payment is in
	// ledger custody.
	excess, err := rail.collect(ctx, buyer, attached, total)
	if err != nil {
		return fmt.Errorf("ledger: buy: collect: %w", err)
	}

	if err := registry.CustodyTransfer(ctx, l.collab.Self, buyer, rec.TokenID, quantity); err != nil {
		return fmt.Errorf("ledger: buy: custody: %w: %w", domain.ErrTransferFailed, err)
	}

	if split.royalty.Sign() > 0 {
		if err := rail.pay(ctx, split.royaltyRecipient, split.royalty); err != nil {
			return fmt.Errorf("ledger: buy: royalty: %w", err)
		}
	}
	if err := rail.pay(ctx, rec.Seller, split.sellerPayout); err != nil {
		return fmt.Errorf("ledger: buy: payout: %w", err)
	}

	remaining := rec.ItemsAvailable - quantity
	var released *big.Int
	if remaining == 0 && rec.DepositFee.Sign() > 0 {
		released = new(big.Int).Set(rec.DepositFee)
		// Deposits are escrowed on the native rail regardless of the
		// listing's payment option.
		if err := l.collab.Treasury.Pay(ctx, rec.Seller, released); err != nil {
			return fmt.Errorf("ledger: buy: deposit release: %w: %w", domain.ErrTransferFailed, err)
		}
	}

	if excess.Sign() > 0 {
		if err := l.collab.Treasury.Pay(ctx, buyer, excess); err != nil {
			return fmt.Errorf("ledger: buy: refund excess: %w: %w", domain.ErrTransferFailed, err)
		}
	}

	// Commit.
	rec.ItemsAvailable = remaining
	rec.ItemsSold += quantity
	rec.UpdatedAt = l.now()
	if released != nil {
		rec.DepositFee = new(big.Int)
	}
	if rec.PaymentOption == domain.PaymentToken {
		// total pulled in, royalty and payout sent back out.
		l.tokenHeld.Add(l.tokenHeld, split.serviceFee)
	} else {
		l.nativeHeld.Add(l.nativeHeld, split.serviceFee)
	}
	if released != nil {
		l.nativeHeld.Sub(l.nativeHeld, released)
	}

	l.persistItem(ctx, rec.Clone())
	l.persistBalances(ctx)

	snap := rec.Clone()
	ev := domain.Event{
		Type:            domain.EventListingPurchased,
		Caller:          buyer,
		Item:            &snap,
		Quantity:        quantity,
		TotalPayment:    split.total,
		ServiceFee:      split.serviceFee,
		SellerPayout:    split.sellerPayout,
		DepositReleased: released,
	}
	if split.royalty.Sign() > 0 {
		r := split.royaltyRecipient
		ev.Royalty = split.royalty
		ev.RoyaltyRecipient = &r
	}
	l.emit(ctx, ev)

	l.logger.Info("listing purchased",
		slog.Uint64("item_id", itemID),
		slog.Uint64("quantity", quantity),
		slog.String("buyer", buyer.Hex()),
		slog.String("total", split.total.String()),
		slog.String("service_fee", split.serviceFee.String()),
		slog.String("royalty", split.royalty.String()),
		slog.Bool("depleted", remaining == 0),
	)
	return nil
}

// WithdrawServiceFees transfers amount of accumulated platform fees to the
// recipient in the requested currency. Admin only. The native balance
// excludes every outstanding escrowed deposit.
func (l *Ledger) WithdrawServiceFees(ctx context.Context, recipient common.Address, amount *big.Int, currency domain.Currency, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireAdmin(ctx, caller); err != nil {
		return fmt.Errorf("ledger: withdraw: %w", err)
	}
	if !currency.Valid() {
		return fmt.Errorf("ledger: withdraw: %w", domain.ErrInvalidPaymentOption)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: withdraw: %w", domain.ErrZeroQuantity)
	}
	if amount.Cmp(l.availableBalance(currency)) > 0 {
		return fmt.Errorf("ledger: withdraw: %w", domain.ErrInsufficientFeeBalance)
	}

	if err := l.railForCurrency(currency).pay(ctx, recipient, amount); err != nil {
		return fmt.Errorf("ledger: withdraw: %w", err)
	}

	// Commit.
	if currency == domain.CurrencyToken {
		l.tokenHeld.Sub(l.tokenHeld, amount)
	} else {
		l.nativeHeld.Sub(l.nativeHeld, amount)
	}
	l.persistBalances(ctx)

	cur := currency
	rcpt := recipient
	l.emit(ctx, domain.Event{
		Type:      domain.EventFeesWithdrawn,
		Caller:    caller,
		Recipient: &rcpt,
		Amount:    new(big.Int).Set(amount),
		Currency:  &cur,
	})

	l.logger.Info("service fees withdrawn",
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", amount.String()),
		slog.String("currency", currency.String()),
	)
	return nil
}
