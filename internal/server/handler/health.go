package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// Check probes one backing dependency.
type Check func(ctx context.Context) error

// LedgerStatus reports the global switches shown on the health page.
type LedgerStatus interface {
	IsPaused() bool
	IsTripped() bool
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	ledger LedgerStatus
	checks map[string]Check
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// (store, redis, s3) to its probe.
func NewHealthHandler(ledger LedgerStatus, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{ledger: ledger, checks: checks, logger: logger}
}

// HealthCheck runs every probe and reports 503 when any fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health: check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	resp := map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.ledger != nil {
		resp["paused"] = h.ledger.IsPaused()
		resp["breaker_tripped"] = h.ledger.IsTripped()
	}
	writeJSON(w, code, resp)
}
