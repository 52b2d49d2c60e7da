package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// ListingLedger is the slice of the ledger the listing handler needs. It is
// declared locally so the handler package does not depend on the concrete
// ledger implementation.
type ListingLedger interface {
	CreateListing(ctx context.Context, tokenID *big.Int, registryRef common.Address, quantity uint64, pricePerItem *big.Int, option domain.PaymentOption, attached *big.Int, seller common.Address) (uint64, error)
	BuyListing(ctx context.Context, itemID, quantity uint64, attached *big.Int, buyer common.Address) error
	RemoveListing(ctx context.Context, itemID, quantity uint64, caller common.Address) error
	Item(itemID uint64) (domain.MarketItem, error)
	Items() []domain.MarketItem
	CurrentItemID() uint64
}

// ListingHandler serves the listing lifecycle endpoints.
type ListingHandler struct {
	ledger ListingLedger
	cache  domain.ItemCache // optional read-through cache
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler. cache may be nil.
func NewListingHandler(ledger ListingLedger, cache domain.ItemCache, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{ledger: ledger, cache: cache, logger: logger}
}

type createListingRequest struct {
	TokenID       string `json:"token_id"`
	AssetRegistry string `json:"asset_registry"`
	Quantity      uint64 `json:"quantity"`
	PricePerItem  string `json:"price_per_item"`
	PaymentOption uint8  `json:"payment_option"`
	// AttachedValue is the native value escrowed with the call, at least
	// the current deposit fee.
	AttachedValue string `json:"attached_value"`
}

// CreateListing lists units of an asset for sale.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	tokenID, ok := parseAmount(req.TokenID)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed token_id")
		return
	}
	price, ok := parseAmount(req.PricePerItem)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed price_per_item")
		return
	}
	attached, ok := parseAmount(req.AttachedValue)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed attached_value")
		return
	}
	if !common.IsHexAddress(req.AssetRegistry) {
		writeError(w, http.StatusBadRequest, "malformed asset_registry")
		return
	}

	itemID, err := h.ledger.CreateListing(r.Context(),
		tokenID,
		common.HexToAddress(req.AssetRegistry),
		req.Quantity,
		price,
		domain.PaymentOption(req.PaymentOption),
		attached,
		seller,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	item, err := h.ledger.Item(itemID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read back created listing",
			slog.Uint64("item_id", itemID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusCreated, map[string]uint64{"item_id": itemID})
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type buyListingRequest struct {
	Quantity uint64 `json:"quantity"`
	// AttachedValue is the native value escrowed with the call. It stays
	// "0" for token-rail purchases, which settle by allowance instead.
	AttachedValue string `json:"attached_value"`
}

// BuyListing purchases units from a listing.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyListing(w http.ResponseWriter, r *http.Request) {
	buyer, ok := requireCaller(w, r)
	if !ok {
		return
	}
	itemID, err := parseItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed item id")
		return
	}

	var req buyListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	attached, ok := parseAmount(req.AttachedValue)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed attached_value")
		return
	}

	if err := h.ledger.BuyListing(r.Context(), itemID, req.Quantity, attached, buyer); err != nil {
		writeDomainError(w, err)
		return
	}

	item, err := h.ledger.Item(itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type removeListingRequest struct {
	Quantity uint64 `json:"quantity"`
}

// RemoveListing takes units off sale and returns them to the seller.
// DELETE /api/listings/{id}
func (h *ListingHandler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	itemID, err := parseItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed item id")
		return
	}

	var req removeListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.ledger.RemoveListing(r.Context(), itemID, req.Quantity, caller); err != nil {
		writeDomainError(w, err)
		return
	}

	item, err := h.ledger.Item(itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type listListingsResponse struct {
	Items         []domain.MarketItem `json:"items"`
	CurrentItemID uint64              `json:"current_item_id"`
}

// ListListings returns every listing record, active and depleted.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listListingsResponse{
		Items:         h.ledger.Items(),
		CurrentItemID: h.ledger.CurrentItemID(),
	})
}

// GetListing returns a single listing record by id, consulting the snapshot
// cache before the ledger.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed item id")
		return
	}

	if h.cache != nil {
		if item, ok, err := h.cache.Get(r.Context(), itemID); err == nil && ok {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}

	item, err := h.ledger.Item(itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), item); err != nil {
			h.logger.WarnContext(r.Context(), "handler: cache listing",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, item)
}
