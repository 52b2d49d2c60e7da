package notify

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

type recordingSender struct {
	titles   []string
	messages []string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func newTestAlerts(sender Sender) *LedgerAlerts {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedgerAlerts(nil, NewNotifier([]Sender{sender}, nil, logger), logger)
}

func TestAlertAdminEvents(t *testing.T) {
	admin := common.HexToAddress("0x0000000000000000000000000000000000000001")
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000009")
	bps := uint32(300)

	tests := []struct {
		name      string
		event     domain.Event
		wantTitle string
		wantPart  string
	}{
		{
			name: "deposit fee",
			event: domain.Event{
				Type:       domain.EventDepositFeeChanged,
				Caller:     admin,
				DepositFee: big.NewInt(500),
			},
			wantTitle: "Deposit fee changed",
			wantPart:  "500",
		},
		{
			name: "service fee",
			event: domain.Event{
				Type:          domain.EventServiceFeeChanged,
				Caller:        admin,
				ServiceFeeBps: &bps,
			},
			wantTitle: "Service fee changed",
			wantPart:  "300 bps",
		},
		{
			name: "whitelist",
			event: domain.Event{
				Type:      domain.EventRegistriesWhitelisted,
				Caller:    admin,
				Whitelist: []common.Address{recipient},
			},
			wantTitle: "Registries whitelisted",
			wantPart:  "1 registries",
		},
		{
			name: "withdrawal",
			event: domain.Event{
				Type:      domain.EventFeesWithdrawn,
				Caller:    admin,
				Amount:    big.NewInt(1234),
				Recipient: &recipient,
			},
			wantTitle: "Service fees withdrawn",
			wantPart:  "1234",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sender := &recordingSender{}
			la := newTestAlerts(sender)

			la.alert(context.Background(), tc.event)

			if len(sender.titles) != 1 {
				t.Fatalf("sent %d alerts, want 1", len(sender.titles))
			}
			if sender.titles[0] != tc.wantTitle {
				t.Errorf("title = %q, want %q", sender.titles[0], tc.wantTitle)
			}
			if !strings.Contains(sender.messages[0], tc.wantPart) {
				t.Errorf("message %q missing %q", sender.messages[0], tc.wantPart)
			}
			if !strings.Contains(sender.messages[0], admin.Hex()) {
				t.Errorf("message %q missing caller address", sender.messages[0])
			}
		})
	}
}

func TestAlertIgnoresTradingEvents(t *testing.T) {
	sender := &recordingSender{}
	la := newTestAlerts(sender)

	for _, typ := range []domain.EventType{
		domain.EventListingCreated,
		domain.EventListingPurchased,
		domain.EventListingRemoved,
	} {
		la.alert(context.Background(), domain.Event{Type: typ})
	}
	if len(sender.titles) != 0 {
		t.Errorf("trading events produced %d alerts, want 0", len(sender.titles))
	}
}

func TestAlertSkipsPartialEvents(t *testing.T) {
	sender := &recordingSender{}
	la := newTestAlerts(sender)

	la.alert(context.Background(), domain.Event{Type: domain.EventServiceFeeChanged})
	la.alert(context.Background(), domain.Event{Type: domain.EventFeesWithdrawn, Amount: big.NewInt(1)})

	if len(sender.titles) != 0 {
		t.Errorf("partial events produced %d alerts, want 0", len(sender.titles))
	}
}

func TestNotifierEventFilter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &recordingSender{}
	n := NewNotifier([]Sender{sender}, []string{"fees_withdrawn"}, logger)

	if err := n.Notify(context.Background(), "service_fee_changed", "a", "b"); err != nil {
		t.Fatalf("filtered notify: %v", err)
	}
	if err := n.Notify(context.Background(), "fees_withdrawn", "c", "d"); err != nil {
		t.Fatalf("allowed notify: %v", err)
	}
	if len(sender.titles) != 1 || sender.titles[0] != "c" {
		t.Errorf("delivered titles = %v, want [c]", sender.titles)
	}
}
