package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// LedgerAlerts turns administrative ledger events into operator
// notifications. It subscribes to the live event channel and forwards fee
// changes, whitelist updates, and withdrawals through the Notifier; trading
// events are left to indexers.
type LedgerAlerts struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewLedgerAlerts creates a LedgerAlerts bridge.
func NewLedgerAlerts(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *LedgerAlerts {
	return &LedgerAlerts{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "ledger_alerts")),
	}
}

// Run consumes the event channel until the context is cancelled.
func (la *LedgerAlerts) Run(ctx context.Context) error {
	msgCh, err := la.bus.Subscribe(ctx, domain.EventChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.EventChannel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return nil
			}
			var ev domain.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				la.logger.Warn("undecodable event payload", slog.String("error", err.Error()))
				continue
			}
			la.alert(ctx, ev)
		}
	}
}

// alert formats and dispatches one event. Only admin-surface events produce
// notifications.
func (la *LedgerAlerts) alert(ctx context.Context, ev domain.Event) {
	var title, message string

	switch ev.Type {
	case domain.EventDepositFeeChanged:
		title = "Deposit fee changed"
		message = fmt.Sprintf("New deposit fee: %s (by %s)", ev.DepositFee, ev.Caller.Hex())
	case domain.EventServiceFeeChanged:
		if ev.ServiceFeeBps == nil {
			return
		}
		title = "Service fee changed"
		message = fmt.Sprintf("New service fee: %d bps (by %s)", *ev.ServiceFeeBps, ev.Caller.Hex())
	case domain.EventRegistriesWhitelisted:
		title = "Registries whitelisted"
		message = fmt.Sprintf("Whitelist now holds %d registries (by %s)", len(ev.Whitelist), ev.Caller.Hex())
	case domain.EventFeesWithdrawn:
		if ev.Recipient == nil {
			return
		}
		title = "Service fees withdrawn"
		message = fmt.Sprintf("Withdrew %s to %s (by %s)", ev.Amount, ev.Recipient.Hex(), ev.Caller.Hex())
	default:
		return
	}

	if err := la.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
		la.logger.Error("alert dispatch failed",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}
