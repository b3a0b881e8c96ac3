package handler

import (
	"context"
	"log/slog"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// ClaimService defines the methods the claim handler requires.
type ClaimService interface {
	Positions(acct common.Address) ([]domain.PositionEntry, error)
	Redeem(ctx context.Context, caller common.Address, epoch uint64) (sdkmath.Int, error)
	Unblock(ctx context.Context, caller common.Address, epoch uint64) ([]sdkmath.Int, error)
	RedeemBlocked(ctx context.Context, caller common.Address, epoch uint64) (sdkmath.Int, error)
}

// ClaimHandler serves position views and settlement endpoints.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logger,
	}
}

// positionResponse is the wire form of one share-class holding.
type positionResponse struct {
	Epoch   uint64 `json:"epoch"`
	Period  uint64 `json:"period"`
	Outcome int    `json:"outcome"`
	Free    string `json:"free"`
	Blocked string `json:"blocked"`
}

// ListPositions returns an account's decoded share holdings.
// GET /api/positions?account=0x...
func (h *ClaimHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	acctStr := r.URL.Query().Get("account")
	if acctStr == "" {
		writeError(w, http.StatusBadRequest, "account query parameter required")
		return
	}
	acct, err := parseAddress(acctStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.claims.Positions(acct)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]positionResponse, len(positions))
	for i, p := range positions {
		out[i] = positionResponse{
			Epoch:   p.Epoch,
			Period:  p.Period,
			Outcome: p.Outcome,
			Free:    p.Free.String(),
			Blocked: p.Blocked.String(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

// claimRequest names the claiming account and the source epoch.
type claimRequest struct {
	Account string `json:"account"`
	Epoch   uint64 `json:"epoch"`
}

func (h *ClaimHandler) parseClaim(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, 0, false
	}
	acct, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, 0, false
	}
	return acct, req.Epoch, true
}

// Redeem settles the account's winning free shares of a resolved epoch for
// collateral.
// POST /api/claims/redeem
func (h *ClaimHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	acct, epoch, ok := h.parseClaim(w, r)
	if !ok {
		return
	}

	amount, err := h.claims.Redeem(r.Context(), acct, epoch)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount.String()})
}

// Unblock releases the account's carried position from a resolved epoch into
// free shares of the current epoch.
// POST /api/claims/unblock
func (h *ClaimHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	acct, epoch, ok := h.parseClaim(w, r)
	if !ok {
		return
	}

	amounts, err := h.claims.Unblock(r.Context(), acct, epoch)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amounts": formatAmountVec(amounts)})
}

// RedeemBlocked cashes out the account's carried position from a resolved
// epoch at the latest resolved prices.
// POST /api/claims/redeem-blocked
func (h *ClaimHandler) RedeemBlocked(w http.ResponseWriter, r *http.Request) {
	acct, epoch, ok := h.parseClaim(w, r)
	if !ok {
		return
	}

	amount, err := h.claims.RedeemBlocked(r.Context(), acct, epoch)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount.String()})
}
