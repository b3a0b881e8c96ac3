package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// TradeService defines the methods the trade handler requires.
type TradeService interface {
	Trade(ctx context.Context, req domain.TradeRequest) (domain.Trade, error)
	ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
	ListTradesByTrader(ctx context.Context, trader common.Address, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade submission and history endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeRequest is a prediction submission. Deltas are signed outcome-token
// amounts in base units, as decimal strings; positive buys, negative sells.
type tradeRequest struct {
	Trader   string   `json:"trader"`
	Deltas   []string `json:"deltas"`
	Rollover bool     `json:"rollover"`
}

// tradeResponse is the wire form of an executed trade.
type tradeResponse struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Trader    string    `json:"trader"`
	Epoch     uint64    `json:"epoch"`
	Period    uint64    `json:"period"`
	Deltas    []string  `json:"deltas"`
	NetCost   string    `json:"net_cost"`
	Fee       string    `json:"fee"`
	Rollover  bool      `json:"rollover"`
	CreatedAt time.Time `json:"created_at"`
}

func toTradeResponse(t domain.Trade) tradeResponse {
	return tradeResponse{
		ID:        t.ID,
		MarketID:  t.MarketID,
		Trader:    t.Trader.Hex(),
		Epoch:     t.Epoch,
		Period:    t.Period,
		Deltas:    formatAmountVec(t.Deltas),
		NetCost:   t.NetCost.String(),
		Fee:       t.Fee.String(),
		Rollover:  t.Rollover,
		CreatedAt: t.CreatedAt,
	}
}

// PlaceTrade executes a prediction against the active epoch.
// POST /api/trades
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trader, err := parseAddress(req.Trader)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deltas, err := parseAmountVec(req.Deltas)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := h.trades.Trade(r.Context(), domain.TradeRequest{
		Trader:   trader,
		Deltas:   deltas,
		Rollover: req.Rollover,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTradeResponse(trade))
}

// listTradesResponse wraps the list endpoint output with pagination metadata.
type listTradesResponse struct {
	Trades []tradeResponse `json:"trades"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ListTrades returns the market's trade history, optionally filtered to one
// trader.
// GET /api/trades?trader=0x...&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var trades []domain.Trade
	var err error
	if traderStr := r.URL.Query().Get("trader"); traderStr != "" {
		trader, parseErr := parseAddress(traderStr)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		trades, err = h.trades.ListTradesByTrader(r.Context(), trader, opts)
	} else {
		trades, err = h.trades.ListTrades(r.Context(), opts)
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]tradeResponse, len(trades))
	for i, t := range trades {
		out[i] = toTradeResponse(t)
	}
	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: out,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
