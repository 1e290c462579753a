package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// PoolService is the part of the ledger the pool endpoints need.
type PoolService interface {
	Deposit(ctx context.Context, lp common.Address, amount domain.Amount) (domain.Amount, error)
	Withdraw(ctx context.Context, lp common.Address, shares domain.Amount) (domain.Amount, error)
	PoolState() domain.VaultState
	SharesOf(lp common.Address) domain.Amount
	PreviewWithdraw(shares domain.Amount) (domain.Amount, error)
	UtilizationBps() uint32
	MaxUtilizationBps() uint32
	InsuranceState() domain.InsuranceState
	BreakerState() domain.BreakerState
	IsPaused() bool
}

// PoolHandler serves the LP pool endpoints.
type PoolHandler struct {
	pool   PoolService
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(pool PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{pool: pool, logger: logger}
}

type depositRequest struct {
	Amount string `json:"amount"`
}

type withdrawRequest struct {
	Shares string `json:"shares"`
}

type poolResponse struct {
	Vault             domain.VaultState     `json:"vault"`
	Available         domain.Amount         `json:"available"`
	UtilizationBps    uint32                `json:"utilization_bps"`
	MaxUtilizationBps uint32                `json:"max_utilization_bps"`
	Insurance         domain.InsuranceState `json:"insurance"`
	Breaker           domain.BreakerState   `json:"breaker"`
	Paused            bool                  `json:"paused"`
	Holder            *holderView           `json:"holder,omitempty"`
}

type holderView struct {
	Address common.Address `json:"address"`
	Shares  domain.Amount  `json:"shares"`
	Value   domain.Amount  `json:"value"`
}

// Deposit adds assets to the pool and mints shares to the caller.
// POST /api/pool/deposit
func (h *PoolHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	shares, err := h.pool.Deposit(r.Context(), caller, amount)
	if err != nil {
		writeLedgerError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shares":       shares,
		"total_shares": h.pool.SharesOf(caller),
	})
}

// Withdraw burns the caller's shares for assets.
// POST /api/pool/withdraw
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	shares, ok := parseAmount(w, "shares", req.Shares)
	if !ok {
		return
	}

	assets, err := h.pool.Withdraw(r.Context(), caller, shares)
	if err != nil {
		writeLedgerError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

// State reports pool accounting. ?holder=0x... adds that LP's position.
// GET /api/pool
func (h *PoolHandler) State(w http.ResponseWriter, r *http.Request) {
	v := h.pool.PoolState()
	resp := poolResponse{
		Vault:             v,
		Available:         v.Available(),
		UtilizationBps:    h.pool.UtilizationBps(),
		MaxUtilizationBps: h.pool.MaxUtilizationBps(),
		Insurance:         h.pool.InsuranceState(),
		Breaker:           h.pool.BreakerState(),
		Paused:            h.pool.IsPaused(),
	}

	if raw := r.URL.Query().Get("holder"); raw != "" {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "holder: "+err.Error())
			return
		}
		hv := &holderView{Address: addr, Shares: h.pool.SharesOf(addr)}
		if hv.Shares > 0 {
			if value, err := h.pool.PreviewWithdraw(hv.Shares); err == nil {
				hv.Value = value
			}
		}
		resp.Holder = hv
	}
	writeJSON(w, http.StatusOK, resp)
}
