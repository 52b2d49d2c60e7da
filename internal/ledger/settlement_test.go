package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/mtvlabs/marketledger/internal/domain"
)

func TestBuyListingValidation(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 5)
	id := mustCreate(t, f, 5, eth(1), eth(100), domain.PaymentNative)

	tests := []struct {
		name     string
		itemID   uint64
		quantity uint64
		attached *big.Int
		want     error
	}{
		{"unknown item", 42, 1, eth(1), domain.ErrItemNotFound},
		{"zero quantity", id, 0, eth(1), domain.ErrZeroQuantity},
		{"exceeds inventory", id, 10, eth(10), domain.ErrInsufficientInventory},
		{"native underpayment", id, 5, eth(4), domain.ErrInsufficientNativePayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ledger.BuyListing(context.Background(), tt.itemID, tt.quantity, tt.attached, f.buyer)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	item, _ := f.ledger.Item(id)
	if item.ItemsAvailable != 5 || item.ItemsSold != 0 {
		t.Fatalf("state changed by rejected buys: %+v", item)
	}
}

func TestBuyListingTokenUnderfunded(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, big.NewInt(100), eth(100), domain.PaymentToken)

	f.currency.fund(f.buyer, big.NewInt(9))
	err := f.ledger.BuyListing(context.Background(), id, 10, nil, f.buyer)
	if !errors.Is(err, domain.ErrInsufficientTokenFunds) {
		t.Fatalf("got %v, want ErrInsufficientTokenFunds", err)
	}
}

// Partial native purchase with the seller as sole creator: 9 of 10 units at
// price 1e18 with a 250 bps service fee. No royalty is due because the
// royalty recipient equals the seller.
func TestBuyListingPartialNative(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	f.registry.royaltySupported = true
	f.registry.royaltyRecipient = f.seller
	f.registry.royaltyBps = 1000

	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.BuyListing(context.Background(), id, 9, eth(9), f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}

	item, _ := f.ledger.Item(id)
	if item.ItemsAvailable != 1 || item.ItemsSold != 9 {
		t.Fatalf("available/sold = %d/%d, want 1/9", item.ItemsAvailable, item.ItemsSold)
	}
	// Not depleted: deposit stays escrowed.
	if item.DepositFee.Cmp(eth(100)) != 0 {
		t.Fatalf("deposit fee = %s, want %s", item.DepositFee, eth(100))
	}

	// serviceFee = 9 * 2.5% = 0.225; sellerPayout = 9 - 0.225 = 8.775.
	wantPayout := milliEth(8775)
	if got := f.treasury.paidTo(f.seller); got.Cmp(wantPayout) != 0 {
		t.Fatalf("seller payout = %s, want %s", got, wantPayout)
	}

	avail, _ := f.ledger.PlatformBalance(domain.CurrencyNative)
	if avail.Cmp(milliEth(225)) != 0 {
		t.Fatalf("platform balance = %s, want %s", avail, milliEth(225))
	}

	// Custody: 9 units to the buyer, 1 still held.
	buyerBal, _ := f.registry.BalanceOf(context.Background(), f.buyer, token1)
	if buyerBal.Uint64() != 9 {
		t.Fatalf("buyer custody = %s, want 9", buyerBal)
	}
	heldBal, _ := f.registry.BalanceOf(context.Background(), f.self, token1)
	if heldBal.Uint64() != 1 {
		t.Fatalf("ledger custody = %s, want 1", heldBal)
	}
}

// Full purchase with a distinct creator taking a 10% royalty: royalty 1.0,
// serviceFee 0.25, sellerPayout 8.75, plus the 100 deposit released to the
// seller in the same operation.
func TestBuyListingFullWithRoyalty(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	f.registry.royaltySupported = true
	f.registry.royaltyRecipient = f.creator
	f.registry.royaltyBps = 1000

	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.BuyListing(context.Background(), id, 10, eth(10), f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}

	item, _ := f.ledger.Item(id)
	if !item.Depleted() || item.ItemsSold != 10 {
		t.Fatalf("available/sold = %d/%d, want 0/10", item.ItemsAvailable, item.ItemsSold)
	}
	if item.DepositFee.Sign() != 0 {
		t.Fatalf("deposit fee = %s after depletion, want 0", item.DepositFee)
	}

	if got := f.treasury.paidTo(f.creator); got.Cmp(eth(1)) != 0 {
		t.Fatalf("royalty = %s, want %s", got, eth(1))
	}
	// Payout 8.75 plus the released deposit 100.
	wantSeller := new(big.Int).Add(milliEth(8750), eth(100))
	if got := f.treasury.paidTo(f.seller); got.Cmp(wantSeller) != 0 {
		t.Fatalf("seller received %s, want %s", got, wantSeller)
	}

	avail, _ := f.ledger.PlatformBalance(domain.CurrencyNative)
	if avail.Cmp(milliEth(250)) != 0 {
		t.Fatalf("platform balance = %s, want %s", avail, milliEth(250))
	}
}

// The split always sums exactly to the payment; the floor-division remainder
// accrues to the seller payout.
func TestBuyListingSplitConservation(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	f.registry.royaltySupported = true
	f.registry.royaltyRecipient = f.creator
	f.registry.royaltyBps = 333

	// A price that does not divide evenly by either rate.
	price := big.NewInt(7919)
	id := mustCreate(t, f, 10, price, eth(100), domain.PaymentNative)

	total := new(big.Int).Mul(price, big.NewInt(3))
	if err := f.ledger.BuyListing(context.Background(), id, 3, total, f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}

	royalty := f.treasury.paidTo(f.creator)
	payout := f.treasury.paidTo(f.seller)
	fee, _ := f.ledger.PlatformBalance(domain.CurrencyNative)

	sum := new(big.Int).Add(royalty, payout)
	sum.Add(sum, fee)
	if sum.Cmp(total) != 0 {
		t.Fatalf("royalty+payout+fee = %s, want %s", sum, total)
	}

	wantFee := new(big.Int).Div(new(big.Int).Mul(total, big.NewInt(250)), big.NewInt(domain.BpsDenominator))
	if fee.Cmp(wantFee) != 0 {
		t.Fatalf("service fee = %s, want %s", fee, wantFee)
	}
	wantRoyalty := new(big.Int).Div(new(big.Int).Mul(total, big.NewInt(333)), big.NewInt(domain.BpsDenominator))
	if royalty.Cmp(wantRoyalty) != 0 {
		t.Fatalf("royalty = %s, want %s", royalty, wantRoyalty)
	}
}

func TestBuyListingRefundsExcessNative(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.BuyListing(context.Background(), id, 2, eth(5), f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}
	if got := f.treasury.paidTo(f.buyer); got.Cmp(eth(3)) != 0 {
		t.Fatalf("refund = %s, want %s", got, eth(3))
	}
}

func TestBuyListingTokenRail(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)

	id := mustCreate(t, f, 10, big.NewInt(100), eth(100), domain.PaymentToken)
	f.currency.fund(f.buyer, big.NewInt(1000))

	if err := f.ledger.BuyListing(context.Background(), id, 10, nil, f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}

	// serviceFee = 1000 * 2.5% = 25; payout 975 in tokens.
	if got := f.currency.balanceOf(f.seller); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("seller token balance = %s, want 975", got)
	}
	if got := f.currency.balanceOf(f.buyer); got.Sign() != 0 {
		t.Fatalf("buyer token balance = %s, want 0", got)
	}
	avail, _ := f.ledger.PlatformBalance(domain.CurrencyToken)
	if avail.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("platform token balance = %s, want 25", avail)
	}

	// Deposit was native and is released on depletion via the treasury.
	if got := f.treasury.paidTo(f.seller); got.Cmp(eth(100)) != 0 {
		t.Fatalf("deposit released = %s, want %s", got, eth(100))
	}
}

func TestBuyListingAbortsOnTransferFailure(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	f.treasury.payErr = errors.New("treasury down")
	err := f.ledger.BuyListing(context.Background(), id, 5, eth(5), f.buyer)
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	item, _ := f.ledger.Item(id)
	if item.ItemsAvailable != 10 || item.ItemsSold != 0 {
		t.Fatalf("state committed on failed buy: %+v", item)
	}
}

// Two full 2.5%-fee purchases accumulate exactly two service fees as the
// withdrawable platform balance.
func TestPlatformBalanceAccumulatesAcrossSales(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	f.registry.royaltySupported = true
	f.registry.royaltyRecipient = f.seller
	f.registry.royaltyBps = 1000

	id1 := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)
	if err := f.ledger.BuyListing(context.Background(), id1, 10, eth(10), f.buyer); err != nil {
		t.Fatalf("buy 1: %v", err)
	}

	// The buyer re-lists and a third party buys it out; royalty now goes to
	// the original seller-creator.
	third := addr(0x05)
	id2, err := f.ledger.CreateListing(context.Background(), token1, f.registryRef, 10, eth(1), domain.PaymentNative, eth(100), f.buyer)
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if err := f.ledger.BuyListing(context.Background(), id2, 10, eth(10), third); err != nil {
		t.Fatalf("buy 2: %v", err)
	}

	avail, _ := f.ledger.PlatformBalance(domain.CurrencyNative)
	if want := milliEth(500); avail.Cmp(want) != 0 {
		t.Fatalf("platform balance = %s, want %s (two service fees)", avail, want)
	}
}

func TestWithdrawServiceFees(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)
	if err := f.ledger.BuyListing(context.Background(), id, 10, eth(10), f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}
	fee := milliEth(250)

	t.Run("non-admin rejected", func(t *testing.T) {
		err := f.ledger.WithdrawServiceFees(context.Background(), f.seller, fee, domain.CurrencyNative, f.seller)
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("exceeds available", func(t *testing.T) {
		err := f.ledger.WithdrawServiceFees(context.Background(), f.admin, eth(10), domain.CurrencyNative, f.admin)
		if !errors.Is(err, domain.ErrInsufficientFeeBalance) {
			t.Fatalf("got %v, want ErrInsufficientFeeBalance", err)
		}
	})

	t.Run("withdraws native fees", func(t *testing.T) {
		recipient := addr(0x06)
		if err := f.ledger.WithdrawServiceFees(context.Background(), recipient, fee, domain.CurrencyNative, f.admin); err != nil {
			t.Fatalf("WithdrawServiceFees: %v", err)
		}
		if got := f.treasury.paidTo(recipient); got.Cmp(fee) != 0 {
			t.Fatalf("withdrawn = %s, want %s", got, fee)
		}
		avail, _ := f.ledger.PlatformBalance(domain.CurrencyNative)
		if avail.Sign() != 0 {
			t.Fatalf("platform balance = %s after withdrawal, want 0", avail)
		}
	})
}

// Outstanding deposits are not withdrawable: an active listing's escrow is
// excluded from the native platform balance.
func TestWithdrawExcludesEscrowedDeposits(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	err := f.ledger.WithdrawServiceFees(context.Background(), f.admin, big.NewInt(1), domain.CurrencyNative, f.admin)
	if !errors.Is(err, domain.ErrInsufficientFeeBalance) {
		t.Fatalf("got %v, want ErrInsufficientFeeBalance", err)
	}
}

func TestWithdrawTokenFees(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, big.NewInt(100), eth(100), domain.PaymentToken)
	f.currency.fund(f.buyer, big.NewInt(1000))
	f.currency.fund(f.self, big.NewInt(0))
	if err := f.ledger.BuyListing(context.Background(), id, 10, nil, f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}

	recipient := addr(0x07)
	if err := f.ledger.WithdrawServiceFees(context.Background(), recipient, big.NewInt(25), domain.CurrencyToken, f.admin); err != nil {
		t.Fatalf("WithdrawServiceFees: %v", err)
	}
	if got := f.currency.balanceOf(recipient); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("recipient token balance = %s, want 25", got)
	}
	avail, _ := f.ledger.PlatformBalance(domain.CurrencyToken)
	if avail.Sign() != 0 {
		t.Fatalf("platform token balance = %s, want 0", avail)
	}
}
