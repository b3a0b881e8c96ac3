// Package server exposes the market over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/server/handler"
	"github.com/alanyoungcy/perpamm/internal/server/middleware"
	"github.com/alanyoungcy/perpamm/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	AdminKey      string // if empty, admin endpoints are open
	RateLimit     int    // requests per window per client; 0 disables
	RateWindow    time.Duration
	FaucetEnabled bool
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Market *handler.MarketHandler
	Epochs *handler.EpochHandler
	Trades *handler.TradeHandler
	Claims *handler.ClaimHandler
	Admin  *handler.AdminHandler
}

// Server is the headless HTTP + WebSocket API server for the market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, rate limiting) and attaches the
// WebSocket hub. Admin routes additionally require the configured admin key.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Admin endpoints sit behind the key; everything else is open.
	adminAuth := middleware.Auth(cfg.AdminKey)
	admin := func(h http.HandlerFunc) http.Handler {
		return adminAuth(h)
	}

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market state and pricing.
	mux.HandleFunc("GET /api/market", handlers.Market.GetMarket)
	mux.HandleFunc("GET /api/market/prices", handlers.Market.GetPrices)
	mux.HandleFunc("POST /api/market/quote", handlers.Market.Quote)

	// Epoch lifecycle. Closing is oracle-authorized inside the engine, so it
	// needs no admin key.
	mux.HandleFunc("GET /api/epochs", handlers.Epochs.ListEpochs)
	mux.HandleFunc("GET /api/epochs/check", handlers.Epochs.CheckEpoch)
	mux.HandleFunc("GET /api/epochs/{number}", handlers.Epochs.GetEpoch)
	mux.HandleFunc("POST /api/epochs/close", handlers.Epochs.CloseEpoch)

	// Trading.
	mux.HandleFunc("POST /api/trades", handlers.Trades.PlaceTrade)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)

	// Positions and settlement claims.
	mux.HandleFunc("GET /api/positions", handlers.Claims.ListPositions)
	mux.HandleFunc("POST /api/claims/redeem", handlers.Claims.Redeem)
	mux.HandleFunc("POST /api/claims/unblock", handlers.Claims.Unblock)
	mux.HandleFunc("POST /api/claims/redeem-blocked", handlers.Claims.RedeemBlocked)

	// Admin endpoints.
	mux.Handle("PUT /api/admin/fee", admin(handlers.Admin.ChangeFee))
	mux.Handle("PUT /api/admin/expiration", admin(handlers.Admin.ChangeExpiration))
	mux.Handle("POST /api/admin/withdraw-fee", admin(handlers.Admin.WithdrawFee))

	// Development faucet.
	if cfg.FaucetEnabled {
		mux.HandleFunc("POST /api/faucet", handlers.Admin.Faucet)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
