package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

var token1 = big.NewInt(1)

func mustCreate(t *testing.T, f *fixture, quantity uint64, price, attached *big.Int, option domain.PaymentOption) uint64 {
	t.Helper()
	id, err := f.ledger.CreateListing(context.Background(), token1, f.registryRef, quantity, price, option, attached, f.seller)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return id
}

func TestCreateListingValidation(t *testing.T) {
	tests := []struct {
		name     string
		quantity uint64
		price    *big.Int
		option   domain.PaymentOption
		attached *big.Int
		registry common.Address
		want     error
	}{
		{"zero quantity", 0, eth(1), domain.PaymentNative, eth(100), addr(0xA1), domain.ErrZeroQuantity},
		{"invalid payment option", 10, eth(1), domain.PaymentOption(2), eth(100), addr(0xA1), domain.ErrInvalidPaymentOption},
		{"zero price", 10, big.NewInt(0), domain.PaymentNative, eth(100), addr(0xA1), domain.ErrZeroPrice},
		{"not whitelisted", 10, eth(1), domain.PaymentNative, eth(100), addr(0xA9), domain.ErrNotWhitelisted},
		{"deposit too low", 10, eth(1), domain.PaymentNative, eth(1), addr(0xA1), domain.ErrDepositTooLow},
		{"not enough asset balance", 11, eth(1), domain.PaymentNative, eth(100), addr(0xA1), domain.ErrInsufficientAssetBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.registry.mint(f.seller, token1, 10)

			_, err := f.ledger.CreateListing(context.Background(), token1, tt.registry, tt.quantity, tt.price, tt.option, tt.attached, f.seller)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if got := f.ledger.CurrentItemID(); got != 0 {
				t.Fatalf("counter advanced to %d on failed create", got)
			}
			if len(f.registry.moves) != 0 {
				t.Fatalf("custody moved on failed create: %v", f.registry.moves)
			}
		})
	}
}

func TestCreateListing(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)

	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)
	if id != 1 {
		t.Fatalf("first item id = %d, want 1", id)
	}

	item, err := f.ledger.Item(id)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.ItemsAvailable != 10 || item.ItemsSold != 0 {
		t.Fatalf("available/sold = %d/%d, want 10/0", item.ItemsAvailable, item.ItemsSold)
	}
	if item.DepositFee.Cmp(eth(100)) != 0 {
		t.Fatalf("deposit fee = %s, want %s", item.DepositFee, eth(100))
	}
	if item.Seller != f.seller || item.AssetRegistry != f.registryRef {
		t.Fatalf("seller/registry mismatch: %+v", item)
	}
	if item.SchemaVersion != domain.ItemSchemaVersion {
		t.Fatalf("schema version = %d, want %d", item.SchemaVersion, domain.ItemSchemaVersion)
	}

	// Units moved into ledger custody.
	bal, _ := f.registry.BalanceOf(context.Background(), f.self, token1)
	if bal.Uint64() != 10 {
		t.Fatalf("ledger custody = %s, want 10", bal)
	}
	sellerBal, _ := f.registry.BalanceOf(context.Background(), f.seller, token1)
	if sellerBal.Sign() != 0 {
		t.Fatalf("seller still holds %s units", sellerBal)
	}
}

func TestCreateListingRefundsExcessDeposit(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)

	mustCreate(t, f, 10, eth(1), eth(150), domain.PaymentNative)

	if got := f.treasury.paidTo(f.seller); got.Cmp(eth(50)) != 0 {
		t.Fatalf("refunded %s to seller, want %s", got, eth(50))
	}
	// Only the deposit stays escrowed; nothing is withdrawable yet.
	avail, err := f.ledger.PlatformBalance(domain.CurrencyNative)
	if err != nil {
		t.Fatalf("PlatformBalance: %v", err)
	}
	if avail.Sign() != 0 {
		t.Fatalf("platform balance = %s, want 0", avail)
	}
}

func TestCreateListingRollsBackCustodyOnRefundFailure(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	f.treasury.payErr = errors.New("treasury down")

	_, err := f.ledger.CreateListing(context.Background(), token1, f.registryRef, 10, eth(1), domain.PaymentNative, eth(150), f.seller)
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if got := f.ledger.CurrentItemID(); got != 0 {
		t.Fatalf("counter advanced to %d on aborted create", got)
	}
	f.treasury.payErr = nil
	bal, _ := f.registry.BalanceOf(context.Background(), f.seller, token1)
	if bal.Uint64() != 10 {
		t.Fatalf("seller balance after rollback = %s, want 10", bal)
	}
}

func TestRemoveListing(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	tests := []struct {
		name     string
		itemID   uint64
		quantity uint64
		caller   common.Address
		want     error
	}{
		{"unknown item", 99, 1, f.seller, domain.ErrItemNotFound},
		{"not the seller", id, 5, f.buyer, domain.ErrUnauthorized},
		{"zero quantity", id, 0, f.seller, domain.ErrZeroQuantity},
		{"exceeds available", id, 11, f.seller, domain.ErrExceedsAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ledger.RemoveListing(context.Background(), tt.itemID, tt.quantity, tt.caller)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := f.ledger.RemoveListing(context.Background(), id, 3, f.seller); err != nil {
		t.Fatalf("RemoveListing: %v", err)
	}
	item, _ := f.ledger.Item(id)
	if item.ItemsAvailable != 7 || item.ItemsSold != 0 {
		t.Fatalf("available/sold = %d/%d, want 7/0", item.ItemsAvailable, item.ItemsSold)
	}
	bal, _ := f.registry.BalanceOf(context.Background(), f.seller, token1)
	if bal.Uint64() != 3 {
		t.Fatalf("seller got %s units back, want 3", bal)
	}
	// Deposit stays escrowed while the listing is active.
	if item.DepositFee.Cmp(eth(100)) != 0 {
		t.Fatalf("deposit fee = %s, want %s", item.DepositFee, eth(100))
	}
}

func TestRemoveListingToZeroReleasesDeposit(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.RemoveListing(context.Background(), id, 10, f.seller); err != nil {
		t.Fatalf("RemoveListing: %v", err)
	}

	item, _ := f.ledger.Item(id)
	if !item.Depleted() {
		t.Fatalf("item not depleted: %+v", item)
	}
	if item.DepositFee.Sign() != 0 {
		t.Fatalf("deposit fee = %s after release, want 0", item.DepositFee)
	}
	if got := f.treasury.paidTo(f.seller); got.Cmp(eth(100)) != 0 {
		t.Fatalf("deposit released = %s, want %s", got, eth(100))
	}

	// The record is terminal: further removal is rejected even for qty 1.
	err := f.ledger.RemoveListing(context.Background(), id, 1, f.seller)
	if !errors.Is(err, domain.ErrExceedsAvailable) {
		t.Fatalf("remove on depleted item: got %v, want ErrExceedsAvailable", err)
	}
}

func TestRemoveAfterPartialSale(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.BuyListing(context.Background(), id, 5, eth(5), f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}
	if err := f.ledger.RemoveListing(context.Background(), id, 6, f.seller); !errors.Is(err, domain.ErrExceedsAvailable) {
		t.Fatalf("got %v, want ErrExceedsAvailable", err)
	}
	if err := f.ledger.RemoveListing(context.Background(), id, 3, f.seller); err != nil {
		t.Fatalf("RemoveListing: %v", err)
	}
	item, _ := f.ledger.Item(id)
	if item.ItemsAvailable != 2 || item.ItemsSold != 5 {
		t.Fatalf("available/sold = %d/%d, want 2/5", item.ItemsAvailable, item.ItemsSold)
	}
}

func TestRelistingAllocatesNewID(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id1 := mustCreate(t, f, 10, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.BuyListing(context.Background(), id1, 10, eth(10), f.buyer); err != nil {
		t.Fatalf("BuyListing: %v", err)
	}

	// Buyer re-lists the same token: a fresh record, never a reuse.
	id2, err := f.ledger.CreateListing(context.Background(), token1, f.registryRef, 10, eth(1), domain.PaymentNative, eth(100), f.buyer)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if id2 != id1+1 {
		t.Fatalf("relist id = %d, want %d", id2, id1+1)
	}
	old, _ := f.ledger.Item(id1)
	if !old.Depleted() || old.ItemsSold != 10 {
		t.Fatalf("original record mutated: %+v", old)
	}
}
