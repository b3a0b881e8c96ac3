package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	State() (domain.MarketRecord, error)
	Prices(ctx context.Context) ([]sdkmath.LegacyDec, error)
	Quote(ctx context.Context, deltas []sdkmath.Int) (netCost, fee sdkmath.Int, err error)
}

// MarketHandler serves market state and pricing endpoints.
type MarketHandler struct {
	market MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(market MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market: market,
		logger: logger,
	}
}

// marketResponse is the wire form of a market snapshot.
type marketResponse struct {
	ID               string    `json:"id"`
	Question         string    `json:"question"`
	OutcomeSlotCount int       `json:"outcome_slot_count"`
	FeeBps           uint32    `json:"fee_bps"`
	ExpirationEpoch  uint64    `json:"expiration_epoch"`
	CurrentEpoch     uint64    `json:"current_epoch"`
	CurrentPeriod    uint64    `json:"current_period"`
	PeriodStart      time.Time `json:"period_start"`
	FeeAccrued       string    `json:"fee_accrued"`
	Expired          bool      `json:"expired"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toMarketResponse(rec domain.MarketRecord) marketResponse {
	return marketResponse{
		ID:               rec.ID,
		Question:         rec.Question,
		OutcomeSlotCount: rec.OutcomeSlotCount,
		FeeBps:           rec.FeeBps,
		ExpirationEpoch:  rec.ExpirationEpoch,
		CurrentEpoch:     rec.CurrentEpoch,
		CurrentPeriod:    rec.CurrentPeriod,
		PeriodStart:      rec.PeriodStart,
		FeeAccrued:       rec.FeeAccrued.String(),
		Expired:          rec.Expired,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// GetMarket returns the current market snapshot.
// GET /api/market
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	rec, err := h.market.State()
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(rec))
}

// GetPrices returns the marginal price of every outcome. Prices sum to one.
// GET /api/market/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.market.Prices(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prices": formatDecVec(prices),
	})
}

// quoteRequest is the body of a quote call. Deltas are signed outcome-token
// amounts in base units, as decimal strings.
type quoteRequest struct {
	Deltas []string `json:"deltas"`
}

// Quote prices a hypothetical trade without executing it.
// POST /api/market/quote
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deltas, err := parseAmountVec(req.Deltas)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	netCost, fee, err := h.market.Quote(r.Context(), deltas)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"net_cost": netCost.String(),
		"fee":      fee.String(),
		"total":    netCost.Add(fee).String(),
	})
}
