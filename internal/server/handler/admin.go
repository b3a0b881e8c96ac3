package handler

import (
	"context"
	"log/slog"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// AdminService defines the methods the admin handler requires.
type AdminService interface {
	ChangeFee(ctx context.Context, caller common.Address, feeBps uint32) error
	ChangeExpirationEpoch(ctx context.Context, caller common.Address, epoch uint64) error
	WithdrawFee(ctx context.Context, caller common.Address) (sdkmath.Int, error)
	Faucet(ctx context.Context, to common.Address) (sdkmath.Int, error)
}

// AdminHandler serves owner-only market administration endpoints plus the
// development faucet.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service and logger.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// changeFeeRequest updates the trading fee.
type changeFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps uint32 `json:"fee_bps"`
}

// ChangeFee updates the trading fee. Owner only.
// PUT /api/admin/fee
func (h *AdminHandler) ChangeFee(w http.ResponseWriter, r *http.Request) {
	var req changeFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.ChangeFee(r.Context(), caller, req.FeeBps); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fee_bps": req.FeeBps})
}

// changeExpirationRequest updates or clears the expiration epoch.
type changeExpirationRequest struct {
	Caller          string `json:"caller"`
	ExpirationEpoch uint64 `json:"expiration_epoch"`
}

// ChangeExpiration sets the epoch after which the market winds down. Zero
// makes the market perpetual again. Owner only.
// PUT /api/admin/expiration
func (h *AdminHandler) ChangeExpiration(w http.ResponseWriter, r *http.Request) {
	var req changeExpirationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.ChangeExpirationEpoch(r.Context(), caller, req.ExpirationEpoch); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expiration_epoch": req.ExpirationEpoch})
}

// withdrawFeeRequest names the withdrawing owner.
type withdrawFeeRequest struct {
	Caller string `json:"caller"`
}

// WithdrawFee transfers accrued trading fees to the owner. Owner only.
// POST /api/admin/withdraw-fee
func (h *AdminHandler) WithdrawFee(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.admin.WithdrawFee(r.Context(), caller)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount.String()})
}

// faucetRequest names the account to fund.
type faucetRequest struct {
	Account string `json:"account"`
}

// Faucet mints test collateral to an account. Only available when the faucet
// is enabled in configuration.
// POST /api/faucet
func (h *AdminHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.admin.Faucet(r.Context(), acct)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount.String()})
}
