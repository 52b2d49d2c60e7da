package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a ledger mutation for external indexing.
type EventType string

const (
	EventListingCreated        EventType = "listing_created"
	EventListingPurchased      EventType = "listing_purchased"
	EventListingRemoved        EventType = "listing_removed"
	EventFeesWithdrawn         EventType = "fees_withdrawn"
	EventDepositFeeChanged     EventType = "deposit_fee_changed"
	EventServiceFeeChanged     EventType = "service_fee_changed"
	EventRegistriesWhitelisted EventType = "registries_whitelisted"
)

// Event is emitted after every successful mutating operation. It carries the
// full post-state of the affected fields so indexers never need to read the
// ledger back.
type Event struct {
	ID     string    `json:"id"` // UUID
	Type   EventType `json:"type"`
	At     time.Time `json:"at"`
	Caller common.Address `json:"caller"`

	// Item is the post-operation snapshot of the affected listing, set for
	// listing events.
	Item *MarketItem `json:"item,omitempty"`

	// Settlement breakdown, set for purchases.
	Quantity         uint64          `json:"quantity,omitempty"`
	TotalPayment     *big.Int        `json:"total_payment,omitempty"`
	ServiceFee       *big.Int        `json:"service_fee,omitempty"`
	Royalty          *big.Int        `json:"royalty,omitempty"`
	RoyaltyRecipient *common.Address `json:"royalty_recipient,omitempty"`
	SellerPayout     *big.Int        `json:"seller_payout,omitempty"`
	DepositReleased  *big.Int        `json:"deposit_released,omitempty"`

	// Withdrawal fields.
	Recipient *common.Address `json:"recipient,omitempty"`
	Amount    *big.Int        `json:"amount,omitempty"`
	Currency  *Currency       `json:"currency,omitempty"`

	// Configuration post-state, set for admin events.
	DepositFee    *big.Int         `json:"deposit_fee,omitempty"`
	ServiceFeeBps *uint32          `json:"service_fee_bps,omitempty"`
	Whitelist     []common.Address `json:"whitelist,omitempty"`
}

// EventChannel is the pub/sub channel ledger events are published on.
const EventChannel = "ch:ledger"

// EventStream is the durable stream ledger events are appended to.
const EventStream = "stream:ledger"
