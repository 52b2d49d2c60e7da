package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

func TestChangeDepositFee(t *testing.T) {
	f := newFixture()

	t.Run("non-admin rejected", func(t *testing.T) {
		err := f.ledger.ChangeDepositFee(context.Background(), eth(200), f.seller)
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("no-op rejected", func(t *testing.T) {
		err := f.ledger.ChangeDepositFee(context.Background(), eth(100), f.admin)
		if !errors.Is(err, domain.ErrNoChange) {
			t.Fatalf("got %v, want ErrNoChange", err)
		}
	})

	t.Run("changed by admin", func(t *testing.T) {
		if err := f.ledger.ChangeDepositFee(context.Background(), eth(200), f.admin); err != nil {
			t.Fatalf("ChangeDepositFee: %v", err)
		}
		if got := f.ledger.DepositFee(); got.Cmp(eth(200)) != 0 {
			t.Fatalf("deposit fee = %s, want %s", got, eth(200))
		}
	})
}

// A deposit-fee change applies to listings created afterward, never to
// deposits already escrowed.
func TestChangeDepositFeeNotRetroactive(t *testing.T) {
	f := newFixture()
	f.registry.mint(f.seller, token1, 10)
	id := mustCreate(t, f, 5, eth(1), eth(100), domain.PaymentNative)

	if err := f.ledger.ChangeDepositFee(context.Background(), eth(200), f.admin); err != nil {
		t.Fatalf("ChangeDepositFee: %v", err)
	}

	old, _ := f.ledger.Item(id)
	if old.DepositFee.Cmp(eth(100)) != 0 {
		t.Fatalf("existing escrow changed to %s", old.DepositFee)
	}

	// A new listing now needs the higher deposit.
	_, err := f.ledger.CreateListing(context.Background(), token1, f.registryRef, 5, eth(1), domain.PaymentNative, eth(100), f.seller)
	if !errors.Is(err, domain.ErrDepositTooLow) {
		t.Fatalf("got %v, want ErrDepositTooLow", err)
	}
	id2, err := f.ledger.CreateListing(context.Background(), token1, f.registryRef, 5, eth(1), domain.PaymentNative, eth(200), f.seller)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	item, _ := f.ledger.Item(id2)
	if item.DepositFee.Cmp(eth(200)) != 0 {
		t.Fatalf("new escrow = %s, want %s", item.DepositFee, eth(200))
	}
}

func TestChangeServiceFee(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		newBps uint32
		caller common.Address
		want   error
	}{
		{"non-admin rejected", 300, f.seller, domain.ErrUnauthorized},
		{"over 10% cap", 3000, f.admin, domain.ErrFeeTooHigh},
		{"no-op rejected", 250, f.admin, domain.ErrNoChange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ledger.ChangeServiceFee(context.Background(), tt.newBps, tt.caller)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if got := f.ledger.ServiceFeeBps(); got != 250 {
				t.Fatalf("service fee changed to %d by rejected call", got)
			}
		})
	}

	if err := f.ledger.ChangeServiceFee(context.Background(), 300, f.admin); err != nil {
		t.Fatalf("ChangeServiceFee: %v", err)
	}
	if got := f.ledger.ServiceFeeBps(); got != 300 {
		t.Fatalf("service fee = %d, want 300", got)
	}
}

func TestWhitelistRegistries(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		refs   []common.Address
		caller common.Address
		want   error
	}{
		{"non-admin rejected", []common.Address{addr(0xB1)}, f.seller, domain.ErrUnauthorized},
		{"empty batch", nil, f.admin, domain.ErrEmptyWhitelistBatch},
		{"zero address", []common.Address{{}}, f.admin, domain.ErrZeroAddress},
		{"already whitelisted", []common.Address{f.registryRef}, f.admin, domain.ErrAlreadyWhitelisted},
		{"duplicate within batch", []common.Address{addr(0xB2), addr(0xB2)}, f.admin, domain.ErrAlreadyWhitelisted},
		// One bad entry rejects the whole batch.
		{"partial batch rejected", []common.Address{addr(0xB3), {}}, f.admin, domain.ErrZeroAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ledger.WhitelistRegistries(context.Background(), tt.refs, tt.caller)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing from the rejected batches leaked in.
	if got := f.ledger.WhitelistedRegistries(); len(got) != 1 || got[0] != f.registryRef {
		t.Fatalf("whitelist = %v, want [%s]", got, f.registryRef.Hex())
	}
}

func TestWhitelistPreservesInsertionOrder(t *testing.T) {
	f := newFixture()

	batch := []common.Address{addr(0xC1), addr(0xC2), addr(0xC3)}
	if err := f.ledger.WhitelistRegistries(context.Background(), batch, f.admin); err != nil {
		t.Fatalf("WhitelistRegistries: %v", err)
	}

	got := f.ledger.WhitelistedRegistries()
	want := append([]common.Address{f.registryRef}, batch...)
	if len(got) != len(want) {
		t.Fatalf("whitelist length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("whitelist[%d] = %s, want %s", i, got[i].Hex(), want[i].Hex())
		}
	}

	// Re-whitelisting any member is rejected.
	for _, ref := range want {
		err := f.ledger.WhitelistRegistries(context.Background(), []common.Address{ref}, f.admin)
		if !errors.Is(err, domain.ErrAlreadyWhitelisted) {
			t.Fatalf("re-whitelist %s: got %v, want ErrAlreadyWhitelisted", ref.Hex(), err)
		}
	}
}

func TestStaticRoles(t *testing.T) {
	roles := NewStaticRoles([]common.Address{addr(0x01)})

	ok, err := roles.HasRole(context.Background(), addr(0x01), domain.RoleAdmin)
	if err != nil || !ok {
		t.Fatalf("admin lookup = %v, %v", ok, err)
	}
	ok, _ = roles.HasRole(context.Background(), addr(0x02), domain.RoleAdmin)
	if ok {
		t.Fatal("non-member granted admin role")
	}
	ok, _ = roles.HasRole(context.Background(), addr(0x01), "operator")
	if ok {
		t.Fatal("unknown role granted")
	}
}
