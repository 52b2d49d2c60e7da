package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// CreateListing validates a new listing, moves the offered units into ledger
// custody, escrows the configured deposit out of the attached native value,
// refunds any excess to the seller, and persists the new record. attached is
// the native value escrowed with the call; the deposit rail is always native
// regardless of the listing's payment option.
//
// The operation is atomic: a failed validation or collaborator transfer
// leaves no internal state behind.
func (l *Ledger) CreateListing(
	ctx context.Context,
	tokenID *big.Int,
	registryRef common.Address,
	quantity uint64,
	pricePerItem *big.Int,
	option domain.PaymentOption,
	attached *big.Int,
	seller common.Address,
) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if quantity == 0 {
		return 0, fmt.Errorf("ledger: create: %w", domain.ErrZeroQuantity)
	}
	if !option.Valid() {
		return 0, fmt.Errorf("ledger: create: %w", domain.ErrInvalidPaymentOption)
	}
	if pricePerItem == nil || pricePerItem.Sign() <= 0 {
		return 0, fmt.Errorf("ledger: create: %w", domain.ErrZeroPrice)
	}
	if !l.inList[registryRef] {
		return 0, fmt.Errorf("ledger: create: %w", domain.ErrNotWhitelisted)
	}
	if attached == nil {
		attached = new(big.Int)
	}
	deposit := new(big.Int).Set(l.fees.DepositFee)
	if attached.Cmp(deposit) < 0 {
		return 0, fmt.Errorf("ledger: create: %w", domain.ErrDepositTooLow)
	}

	registry, err := l.registryFor(registryRef)
	if err != nil {
		return 0, err
	}
	balance, err := registry.BalanceOf(ctx, seller, tokenID)
	if err != nil {
		return 0, fmt.Errorf("ledger: create: asset balance: %w: %w", domain.ErrTransferFailed, err)
	}
	if balance.Cmp(new(big.Int).SetUint64(quantity)) < 0 {
		return 0, fmt.Errorf("ledger: create: %w", domain.ErrInsufficientAssetBalance)
	}

	// Stage the record before any external call so the allocation is fixed
	// for this operation; it is only committed after every transfer lands.
	itemID := l.counter + 1
	now := l.now()
	rec := domain.MarketItem{
		SchemaVersion:  domain.ItemSchemaVersion,
		ItemID:         itemID,
		TokenID:        new(big.Int).Set(tokenID),
		AssetRegistry:  registryRef,
		Seller:         seller,
		ItemsAvailable: quantity,
		ItemsSold:      0,
		PricePerItem:   new(big.Int).Set(pricePerItem),
		PaymentOption:  option,
		DepositFee:     deposit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := registry.CustodyTransfer(ctx, seller, l.collab.Self, tokenID, quantity); err != nil {
		return 0, fmt.Errorf("ledger: create: custody: %w: %w", domain.ErrTransferFailed, err)
	}

	excess := new(big.Int).Sub(attached, deposit)
	if excess.Sign() > 0 {
		if err := l.collab.Treasury.Pay(ctx, seller, excess); err != nil {
			// The units already moved into custody; hand them back so the
			// aborted operation leaves nothing behind.
			if rbErr := registry.CustodyTransfer(ctx, l.collab.Self, seller, tokenID, quantity); rbErr != nil {
				l.logger.Error("create rollback failed, custody stranded",
					slog.Uint64("item_id", itemID),
					slog.String("seller", seller.Hex()),
					slog.String("error", rbErr.Error()),
				)
			}
			return 0, fmt.Errorf("ledger: create: refund excess: %w: %w", domain.ErrTransferFailed, err)
		}
	}

	// Commit.
	l.counter = itemID
	l.items[itemID] = &rec
	l.nativeHeld.Add(l.nativeHeld, deposit)

	l.persistItem(ctx, rec.Clone())
	l.persistBalances(ctx)

	snap := rec.Clone()
	l.emit(ctx, domain.Event{
		Type:   domain.EventListingCreated,
		Caller: seller,
		Item:   &snap,
	})

	l.logger.Info("listing created",
		slog.Uint64("item_id", itemID),
		slog.String("seller", seller.Hex()),
		slog.Uint64("quantity", quantity),
		slog.String("price", pricePerItem.String()),
		slog.String("rail", option.String()),
	)
	return itemID, nil
}

// RemoveListing returns quantity unsold units to the seller. When the
// removal empties the listing, the escrowed deposit is released to the
// seller in the same operation and the record becomes terminal.
func (l *Ledger) RemoveListing(ctx context.Context, itemID, quantity uint64, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.items[itemID]
	if !ok {
		return fmt.Errorf("ledger: remove: %w", domain.ErrItemNotFound)
	}
	if caller != rec.Seller {
		return fmt.Errorf("ledger: remove: %w", domain.ErrUnauthorized)
	}
	if quantity == 0 {
		return fmt.Errorf("ledger: remove: %w", domain.ErrZeroQuantity)
	}
	// Covers the depleted listing as well: any quantity exceeds zero
	// availability.
	if quantity > rec.ItemsAvailable {
		return fmt.Errorf("ledger: remove: %w", domain.ErrExceedsAvailable)
	}

	registry, err := l.registryFor(rec.AssetRegistry)
	if err != nil {
		return err
	}
	if err := registry.CustodyTransfer(ctx, l.collab.Self, rec.Seller, rec.TokenID, quantity); err != nil {
		return fmt.Errorf("ledger: remove: custody: %w: %w", domain.ErrTransferFailed, err)
	}

	remaining := rec.ItemsAvailable - quantity
	var released *big.Int
	if remaining == 0 && rec.DepositFee.Sign() > 0 {
		released = new(big.Int).Set(rec.DepositFee)
		if err := l.collab.Treasury.Pay(ctx, rec.Seller, released); err != nil {
			if rbErr := registry.CustodyTransfer(ctx, rec.Seller, l.collab.Self, rec.TokenID, quantity); rbErr != nil {
				l.logger.Error("remove rollback failed, custody stranded",
					slog.Uint64("item_id", itemID),
					slog.String("error", rbErr.Error()),
				)
			}
			return fmt.Errorf("ledger: remove: deposit release: %w: %w", domain.ErrTransferFailed, err)
		}
	}

	// Commit.
	rec.ItemsAvailable = remaining
	rec.UpdatedAt = l.now()
	if released != nil {
		rec.DepositFee = new(big.Int)
		l.nativeHeld.Sub(l.nativeHeld, released)
	}

	l.persistItem(ctx, rec.Clone())
	l.persistBalances(ctx)

	snap := rec.Clone()
	l.emit(ctx, domain.Event{
		Type:            domain.EventListingRemoved,
		Caller:          caller,
		Item:            &snap,
		Quantity:        quantity,
		DepositReleased: released,
	})

	l.logger.Info("listing removed",
		slog.Uint64("item_id", itemID),
		slog.Uint64("quantity", quantity),
		slog.Bool("depleted", remaining == 0),
	)
	return nil
}
