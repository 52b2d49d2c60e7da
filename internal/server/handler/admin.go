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

// AdminLedger is the slice of the ledger the admin handler needs.
type AdminLedger interface {
	ChangeDepositFee(ctx context.Context, newAmount *big.Int, caller common.Address) error
	ChangeServiceFee(ctx context.Context, newBps uint32, caller common.Address) error
	WhitelistRegistries(ctx context.Context, refs []common.Address, caller common.Address) error
	WithdrawServiceFees(ctx context.Context, recipient common.Address, amount *big.Int, currency domain.Currency, caller common.Address) error
	Fees() domain.FeeConfig
	WhitelistedRegistries() []common.Address
	PlatformBalance(currency domain.Currency) (*big.Int, error)
}

// AdminHandler serves the fee, whitelist, and withdrawal endpoints.
type AdminHandler struct {
	ledger AdminLedger
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(ledger AdminLedger, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{ledger: ledger, logger: logger}
}

// GetFees returns the current fee configuration.
// GET /api/fees
func (h *AdminHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Fees())
}

type changeDepositFeeRequest struct {
	Amount string `json:"amount"`
}

// ChangeDepositFee sets the deposit required from new listings.
// PUT /api/fees/deposit
func (h *AdminHandler) ChangeDepositFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req changeDepositFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed amount")
		return
	}

	if err := h.ledger.ChangeDepositFee(r.Context(), amount, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ledger.Fees())
}

type changeServiceFeeRequest struct {
	Bps uint32 `json:"bps"`
}

// ChangeServiceFee sets the platform cut in basis points.
// PUT /api/fees/service
func (h *AdminHandler) ChangeServiceFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req changeServiceFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.ledger.ChangeServiceFee(r.Context(), req.Bps, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ledger.Fees())
}

// GetWhitelist returns the registry whitelist in insertion order.
// GET /api/whitelist
func (h *AdminHandler) GetWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]common.Address{
		"registries": h.ledger.WhitelistedRegistries(),
	})
}

type whitelistRequest struct {
	Registries []string `json:"registries"`
}

// WhitelistRegistries approves a batch of asset registries for listing.
// POST /api/whitelist
func (h *AdminHandler) WhitelistRegistries(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	refs := make([]common.Address, 0, len(req.Registries))
	for _, raw := range req.Registries {
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "malformed registry address "+raw)
			return
		}
		refs = append(refs, common.HexToAddress(raw))
	}

	if err := h.ledger.WhitelistRegistries(r.Context(), refs, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]common.Address{
		"registries": h.ledger.WhitelistedRegistries(),
	})
}

// GetBalance returns the withdrawable platform balance per currency.
// GET /api/balance
func (h *AdminHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	native, err := h.ledger.PlatformBalance(domain.CurrencyNative)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := h.ledger.PlatformBalance(domain.CurrencyToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"native": native.String(),
		"token":  token.String(),
	})
}

type withdrawRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Currency  uint8  `json:"currency"`
}

// Withdraw pays accumulated service fees out of the platform balance.
// POST /api/withdrawals
func (h *AdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		writeError(w, http.StatusBadRequest, "malformed recipient")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed amount")
		return
	}

	err := h.ledger.WithdrawServiceFees(r.Context(),
		common.HexToAddress(req.Recipient),
		amount,
		domain.Currency(req.Currency),
		caller,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}
