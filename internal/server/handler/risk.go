package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// RiskService exposes the read-only risk views.
type RiskService interface {
	Exposure(asset string) domain.ExposureEntry
	ExposureTable() []domain.ExposureEntry
	Reputation(executor common.Address) domain.ReputationRecord
	GetTierConfig(tier domain.ExecutorTier) (domain.TierConfig, error)
	ListRights(f domain.RightFilter) []domain.CapitalRight
}

// RiskHandler serves exposure and executor lookups.
type RiskHandler struct {
	risk   RiskService
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskService, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, logger: logger}
}

type executorResponse struct {
	Reputation   domain.ReputationRecord `json:"reputation"`
	TierConfig   domain.TierConfig       `json:"tier_config"`
	ActiveRights int                     `json:"active_rights"`
}

// Exposure returns the per-asset exposure table, or one asset with ?asset=.
// GET /api/exposure
func (h *RiskHandler) Exposure(w http.ResponseWriter, r *http.Request) {
	if asset := r.URL.Query().Get("asset"); asset != "" {
		writeJSON(w, http.StatusOK, h.risk.Exposure(asset))
		return
	}
	table := h.risk.ExposureTable()
	if table == nil {
		table = []domain.ExposureEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": table})
}

// Executor returns an executor's reputation and effective tier limits.
// GET /api/executors/{address}
func (h *RiskHandler) Executor(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := h.risk.Reputation(addr)
	rec.Executor = addr
	cfg, err := h.risk.GetTierConfig(rec.Tier)
	if err != nil {
		writeLedgerError(w, r, h.logger, "executor", err)
		return
	}
	writeJSON(w, http.StatusOK, executorResponse{
		Reputation:   rec,
		TierConfig:   cfg,
		ActiveRights: len(h.risk.ListRights(domain.RightFilter{Owner: &addr, Status: domain.RightStatusActive})),
	})
}
