package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// requireAdmin checks the caller against the injected role membership.
// Callers must hold l.mu.
func (l *Ledger) requireAdmin(ctx context.Context, caller common.Address) error {
	ok, err := l.collab.Roles.HasRole(ctx, caller, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// ChangeDepositFee sets the deposit amount required for new listings. It
// never touches deposits already escrowed. Admin only; setting the current
// value again is rejected.
func (l *Ledger) ChangeDepositFee(ctx context.Context, newAmount *big.Int, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireAdmin(ctx, caller); err != nil {
		return fmt.Errorf("ledger: change deposit fee: %w", err)
	}
	if newAmount == nil || newAmount.Sign() < 0 {
		return fmt.Errorf("ledger: change deposit fee: %w", domain.ErrZeroPrice)
	}
	if newAmount.Cmp(l.fees.DepositFee) == 0 {
		return fmt.Errorf("ledger: change deposit fee: %w", domain.ErrNoChange)
	}

	l.fees.DepositFee = new(big.Int).Set(newAmount)
	l.persistFees(ctx)

	fee := new(big.Int).Set(newAmount)
	l.emit(ctx, domain.Event{
		Type:       domain.EventDepositFeeChanged,
		Caller:     caller,
		DepositFee: fee,
	})

	l.logger.Info("deposit fee changed", slog.String("amount", newAmount.String()))
	return nil
}

// ChangeServiceFee sets the platform fee rate. Admin only; the rate is
// capped at MaxServiceFeeBps (10%), and setting the current value again is
// rejected.
func (l *Ledger) ChangeServiceFee(ctx context.Context, newBps uint32, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireAdmin(ctx, caller); err != nil {
		return fmt.Errorf("ledger: change service fee: %w", err)
	}
	if newBps > domain.MaxServiceFeeBps {
		return fmt.Errorf("ledger: change service fee: %w", domain.ErrFeeTooHigh)
	}
	if newBps == l.fees.ServiceFeeBps {
		return fmt.Errorf("ledger: change service fee: %w", domain.ErrNoChange)
	}

	l.fees.ServiceFeeBps = newBps
	l.persistFees(ctx)

	bps := newBps
	l.emit(ctx, domain.Event{
		Type:          domain.EventServiceFeeChanged,
		Caller:        caller,
		ServiceFeeBps: &bps,
	})

	l.logger.Info("service fee changed", slog.Uint64("bps", uint64(newBps)))
	return nil
}

// WhitelistRegistries appends a batch of asset registries to the whitelist
// in the given order. Admin only. The whole batch is validated before any
// mutation: an empty batch, a zero address, a reference already whitelisted,
// or a duplicate within the batch rejects everything.
func (l *Ledger) WhitelistRegistries(ctx context.Context, refs []common.Address, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireAdmin(ctx, caller); err != nil {
		return fmt.Errorf("ledger: whitelist: %w", err)
	}
	if len(refs) == 0 {
		return fmt.Errorf("ledger: whitelist: %w", domain.ErrEmptyWhitelistBatch)
	}
	seen := make(map[common.Address]bool, len(refs))
	for _, ref := range refs {
		if ref == (common.Address{}) {
			return fmt.Errorf("ledger: whitelist: %w", domain.ErrZeroAddress)
		}
		if l.inList[ref] || seen[ref] {
			return fmt.Errorf("ledger: whitelist %s: %w", ref.Hex(), domain.ErrAlreadyWhitelisted)
		}
		seen[ref] = true
	}

	for _, ref := range refs {
		l.inList[ref] = true
		l.whitelist = append(l.whitelist, ref)
	}

	if l.persist.Config != nil {
		if err := l.persist.Config.SaveWhitelist(ctx, l.whitelist); err != nil {
			l.logger.Error("persist whitelist failed", slog.String("error", err.Error()))
		}
	}

	full := make([]common.Address, len(l.whitelist))
	copy(full, l.whitelist)
	l.emit(ctx, domain.Event{
		Type:      domain.EventRegistriesWhitelisted,
		Caller:    caller,
		Whitelist: full,
	})

	l.logger.Info("registries whitelisted",
		slog.Int("added", len(refs)),
		slog.Int("total", len(l.whitelist)),
	)
	return nil
}

// persistFees writes the fee configuration through the config store.
// Callers must hold l.mu.
func (l *Ledger) persistFees(ctx context.Context) {
	if l.persist.Config == nil {
		return
	}
	if err := l.persist.Config.SaveFees(ctx, l.fees.Clone()); err != nil {
		l.logger.Error("persist fees failed", slog.String("error", err.Error()))
	}
}

// StaticRoles is a RoleChecker backed by a fixed membership set, typically
// loaded from configuration.
type StaticRoles struct {
	members map[string]map[common.Address]bool
}

// NewStaticRoles builds a StaticRoles granting every address in admins the
// admin role.
func NewStaticRoles(admins []common.Address) *StaticRoles {
	set := make(map[common.Address]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return &StaticRoles{members: map[string]map[common.Address]bool{
		domain.RoleAdmin: set,
	}}
}

// HasRole implements domain.RoleChecker.
func (s *StaticRoles) HasRole(_ context.Context, principal common.Address, role string) (bool, error) {
	return s.members[role][principal], nil
}
