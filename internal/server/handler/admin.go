package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// AdminService is the set of admin-gated ledger operations.
type AdminService interface {
	SetAdapterTypes(ctx context.Context, caller common.Address, adapters []common.Address, categories []domain.AdapterCategory) error
	SetTier(ctx context.Context, caller, executor common.Address, tier domain.ExecutorTier) error
	BanExecutor(ctx context.Context, caller, executor common.Address) error
	UnbanExecutor(ctx context.Context, caller, executor common.Address) error
	SetWhitelisted(ctx context.Context, caller, executor common.Address, whitelisted bool) error
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	ResetBreaker(ctx context.Context, caller common.Address) error
	SetBreakerThreshold(ctx context.Context, caller common.Address, threshold domain.Amount) error
	DepositInsurance(ctx context.Context, from common.Address, amount domain.Amount) error
	PayoutInsurance(ctx context.Context, caller, to common.Address, amount domain.Amount) (domain.Amount, error)
}

// AdminHandler serves /api/admin. Authorization is enforced by the ledger
// against the caller address.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

type adaptersRequest struct {
	Adapters   []string                 `json:"adapters"`
	Categories []domain.AdapterCategory `json:"categories"`
}

type executorRequest struct {
	Executor    string              `json:"executor"`
	Tier        domain.ExecutorTier `json:"tier"`
	Whitelisted bool                `json:"whitelisted"`
}

type amountRequest struct {
	To     string `json:"to,omitempty"`
	Amount string `json:"amount"`
}

// SetAdapters registers adapter categories in one batch.
// POST /api/admin/adapters
func (h *AdminHandler) SetAdapters(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req adaptersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	adapters := make([]common.Address, len(req.Adapters))
	for i, raw := range req.Adapters {
		a, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "adapters: "+err.Error())
			return
		}
		adapters[i] = a
	}
	if err := h.admin.SetAdapterTypes(r.Context(), caller, adapters, req.Categories); err != nil {
		writeLedgerError(w, r, h.logger, "set adapters", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(adapters)})
}

// SetTier assigns an executor tier.
// POST /api/admin/tier
func (h *AdminHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	h.executorOp(w, r, "set tier", func(ctx context.Context, caller, executor common.Address, req executorRequest) error {
		return h.admin.SetTier(ctx, caller, executor, req.Tier)
	})
}

// Ban bars an executor from new rights.
// POST /api/admin/ban
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.executorOp(w, r, "ban", func(ctx context.Context, caller, executor common.Address, _ executorRequest) error {
		return h.admin.BanExecutor(ctx, caller, executor)
	})
}

// Unban lifts a ban.
// POST /api/admin/unban
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.executorOp(w, r, "unban", func(ctx context.Context, caller, executor common.Address, _ executorRequest) error {
		return h.admin.UnbanExecutor(ctx, caller, executor)
	})
}

// Whitelist sets or clears the whitelist flag.
// POST /api/admin/whitelist
func (h *AdminHandler) Whitelist(w http.ResponseWriter, r *http.Request) {
	h.executorOp(w, r, "whitelist", func(ctx context.Context, caller, executor common.Address, req executorRequest) error {
		return h.admin.SetWhitelisted(ctx, caller, executor, req.Whitelisted)
	})
}

func (h *AdminHandler) executorOp(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address, common.Address, executorRequest) error) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req executorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	executor, err := parseAddress(req.Executor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "executor: "+err.Error())
		return
	}
	if err := fn(r.Context(), caller, executor, req); err != nil {
		writeLedgerError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executor": executor, "status": "ok"})
}

// Pause halts new rights, deposits and position opens.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "pause", h.admin.Pause)
}

// Unpause resumes normal operation.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "unpause", h.admin.Unpause)
}

// ResetBreaker clears a tripped circuit breaker.
// POST /api/admin/breaker/reset
func (h *AdminHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "reset breaker", h.admin.ResetBreaker)
}

func (h *AdminHandler) toggle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address) error) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), caller); err != nil {
		writeLedgerError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetBreakerThreshold changes the rolling loss threshold. Zero disables
// tripping.
// POST /api/admin/breaker/threshold
func (h *AdminHandler) SetBreakerThreshold(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	threshold, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := h.admin.SetBreakerThreshold(r.Context(), caller, threshold); err != nil {
		writeLedgerError(w, r, h.logger, "set breaker threshold", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threshold": threshold})
}

// DepositInsurance credits the insurance fund from the caller.
// POST /api/admin/insurance/deposit
func (h *AdminHandler) DepositInsurance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := h.admin.DepositInsurance(r.Context(), caller, amount); err != nil {
		writeLedgerError(w, r, h.logger, "insurance deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deposited": amount})
}

// PayoutInsurance pays up to amount from the fund.
// POST /api/admin/insurance/payout
func (h *AdminHandler) PayoutInsurance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	paid, err := h.admin.PayoutInsurance(r.Context(), caller, to, amount)
	if err != nil {
		writeLedgerError(w, r, h.logger, "insurance payout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paid": paid})
}
