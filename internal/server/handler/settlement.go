package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// SettlementService settles rights and previews settlements.
type SettlementService interface {
	SettleKind(ctx context.Context, id uint64, caller common.Address, kind domain.SettlementKind) (domain.SettlementRecord, error)
	CanSettle(ctx context.Context, id uint64, caller common.Address, kind domain.SettlementKind) (bool, string)
	CanForceSettle(id uint64, caller common.Address) bool
	EstimateSettlement(ctx context.Context, id uint64, caller common.Address) (domain.SettlementEstimate, error)
}

// SettlementHandler serves the settlement endpoints.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

// Settle returns a handler closing the right with the given kind.
// POST /api/rights/{id}/settle | settle-early | force-settle
func (h *SettlementHandler) Settle(kind domain.SettlementKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerAddress(w, r)
		if !ok {
			return
		}
		id, ok := rightID(w, r)
		if !ok {
			return
		}
		rec, err := h.settlements.SettleKind(r.Context(), id, caller, kind)
		if err != nil {
			writeLedgerError(w, r, h.logger, "settle", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// CanSettle reports whether the caller could settle now.
// GET /api/rights/{id}/can-settle?kind=settle|early|force
func (h *SettlementHandler) CanSettle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	kind := domain.SettlementNormal
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind = domain.SettlementKind(raw)
	}
	switch kind {
	case domain.SettlementNormal, domain.SettlementEarly, domain.SettlementForced:
	default:
		writeError(w, http.StatusBadRequest, "unknown settlement kind "+string(kind))
		return
	}

	can, reason := h.settlements.CanSettle(r.Context(), id, caller, kind)
	writeJSON(w, http.StatusOK, map[string]any{
		"right_id":         id,
		"kind":             kind,
		"can_settle":       can,
		"reason":           reason,
		"can_force_settle": h.settlements.CanForceSettle(id, caller),
	})
}

// Estimate previews the settlement the caller would receive now.
// GET /api/rights/{id}/estimate
func (h *SettlementHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	est, err := h.settlements.EstimateSettlement(r.Context(), id, caller)
	if err != nil {
		writeLedgerError(w, r, h.logger, "estimate", err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}
