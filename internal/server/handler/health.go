package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports liveness plus basic identity of the running node.
type HealthHandler struct {
	mode     string
	marketID string
	started  time.Time
	logger   *slog.Logger
}

func NewHealthHandler(mode, marketID string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:     mode,
		marketID: marketID,
		started:  time.Now().UTC(),
		logger:   logger,
	}
}

// HealthCheck reports the node's mode, market and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"market":         h.marketID,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
