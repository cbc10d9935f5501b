package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/isdelr/warbler/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// HealthHandler reports database reachability and host stats.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check answers 200 when the database responds and 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}

	resp := map[string]interface{}{"status": "ok", "database": "up"}
	if counts, err := monitoring.CountRows(ctx, h.db); err == nil {
		resp["counts"] = counts
	} else {
		log.Warn().Err(err).Msg("Health check: failed to count rows")
	}
	if host, err := monitoring.HostStats(ctx); err == nil {
		resp["host"] = host
	} else {
		log.Warn().Err(err).Msg("Health check: failed to read host stats")
	}
	writeJSON(w, http.StatusOK, resp)
}
