package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// EpochService defines the methods the epoch handler requires.
type EpochService interface {
	Epochs() ([]domain.Epoch, error)
	EpochInfo(number uint64) (domain.Epoch, error)
	CheckEpoch() (bool, error)
	CloseEpoch(ctx context.Context, caller common.Address, payouts []sdkmath.Int) (bool, error)
}

// EpochHandler serves epoch lifecycle endpoints.
type EpochHandler struct {
	epochs EpochService
	logger *slog.Logger
}

// NewEpochHandler creates an EpochHandler with the given service and logger.
func NewEpochHandler(epochs EpochService, logger *slog.Logger) *EpochHandler {
	return &EpochHandler{
		epochs: epochs,
		logger: logger,
	}
}

// epochResponse is the wire form of one epoch.
type epochResponse struct {
	Number             uint64     `json:"number"`
	Start              time.Time  `json:"start"`
	Funding            string     `json:"funding"`
	FundingForRollover string     `json:"funding_for_rollover,omitempty"`
	TotalPayout        string     `json:"total_payout,omitempty"`
	PayoutNumerators   []string   `json:"payout_numerators,omitempty"`
	PayoutDenominator  string     `json:"payout_denominator,omitempty"`
	BasePrices         []string   `json:"base_prices,omitempty"`
	Resolved           bool       `json:"resolved"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func toEpochResponse(ep domain.Epoch) epochResponse {
	resp := epochResponse{
		Number:   ep.Number,
		Start:    ep.Start,
		Funding:  ep.Funding.String(),
		Resolved: ep.Resolved(),
		ClosedAt: ep.ClosedAt,
	}
	if ep.Resolved() {
		resp.FundingForRollover = ep.FundingForRollover.String()
		resp.TotalPayout = ep.TotalPayout.String()
		resp.PayoutNumerators = formatAmountVec(ep.PayoutNumerators)
		resp.PayoutDenominator = ep.PayoutDenominator.String()
		resp.BasePrices = formatDecVec(ep.BasePrices)
	}
	return resp
}

// ListEpochs returns every epoch of the market in ascending order.
// GET /api/epochs
func (h *EpochHandler) ListEpochs(w http.ResponseWriter, r *http.Request) {
	epochs, err := h.epochs.Epochs()
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]epochResponse, len(epochs))
	for i, ep := range epochs {
		out[i] = toEpochResponse(ep)
	}
	writeJSON(w, http.StatusOK, map[string]any{"epochs": out})
}

// GetEpoch returns a single epoch by number.
// GET /api/epochs/{number}
func (h *EpochHandler) GetEpoch(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseUint(pathParam(r, "number"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch number")
		return
	}

	ep, err := h.epochs.EpochInfo(number)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEpochResponse(ep))
}

// CheckEpoch reports whether the active epoch is overdue for resolution.
// GET /api/epochs/check
func (h *EpochHandler) CheckEpoch(w http.ResponseWriter, r *http.Request) {
	due, err := h.epochs.CheckEpoch()
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolution_due": due})
}

// closeEpochRequest is the oracle's resolution report. Payouts are relative
// numerators, one per outcome, as decimal strings.
type closeEpochRequest struct {
	Caller  string   `json:"caller"`
	Payouts []string `json:"payouts"`
}

// CloseEpoch resolves the active epoch with the caller's payout vector.
// POST /api/epochs/close
func (h *EpochHandler) CloseEpoch(w http.ResponseWriter, r *http.Request) {
	var req closeEpochRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payouts, err := parseAmountVec(req.Payouts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expired, err := h.epochs.CloseEpoch(r.Context(), caller, payouts)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": expired})
}
