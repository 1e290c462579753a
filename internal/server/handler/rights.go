package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// RightsService is the part of the ledger the rights and position endpoints
// need.
type RightsService interface {
	RequestRight(ctx context.Context, req domain.RightRequest) (domain.CapitalRight, error)
	Right(id uint64) (domain.CapitalRight, error)
	ListRights(f domain.RightFilter) []domain.CapitalRight
	Transfer(ctx context.Context, id uint64, caller, newOwner common.Address) error
	IsValid(id uint64) bool
	Positions(rightID uint64) []domain.Position
	Settlement(id uint64) (domain.SettlementRecord, error)
	RecordOpen(ctx context.Context, rightID uint64, caller, adapter common.Address, asset string, size int64, entryValue domain.Amount) (domain.Position, error)
	RecordClose(ctx context.Context, rightID uint64, caller, adapter common.Address, asset string) (domain.Amount, error)
	RecordCloseAt(ctx context.Context, rightID uint64, caller, adapter common.Address, asset string, exitValue domain.Amount) (domain.Amount, error)
}

// RightsHandler serves capital right and position endpoints.
type RightsHandler struct {
	rights RightsService
	now    func() time.Time
	logger *slog.Logger
}

// NewRightsHandler creates a RightsHandler.
func NewRightsHandler(rights RightsService, logger *slog.Logger) *RightsHandler {
	return &RightsHandler{rights: rights, now: time.Now, logger: logger}
}

type requestRightRequest struct {
	CapitalLimit string             `json:"capital_limit"`
	Duration     string             `json:"duration"`
	Stake        string             `json:"stake"`
	Constraints  domain.Constraints `json:"constraints"`
	Fees         struct {
		BaseFeeAprBps  uint32 `json:"base_fee_apr_bps"`
		ProfitShareBps uint32 `json:"profit_share_bps"`
	} `json:"fees"`
}

type rightResponse struct {
	Right      domain.CapitalRight      `json:"right"`
	Positions  []domain.Position        `json:"positions"`
	Settlement *domain.SettlementRecord `json:"settlement,omitempty"`
}

type listRightsResponse struct {
	Rights []domain.CapitalRight `json:"rights"`
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

type openPositionRequest struct {
	Adapter    string `json:"adapter"`
	Asset      string `json:"asset"`
	Size       int64  `json:"size"`
	EntryValue string `json:"entry_value"`
}

type closePositionRequest struct {
	Adapter string `json:"adapter"`
	Asset   string `json:"asset"`
	// ExitValue is the adapter-reported proceeds. Empty closes at the oracle mark.
	ExitValue string `json:"exit_value,omitempty"`
}

// Request issues a new right with the caller as executor and owner.
// POST /api/rights
func (h *RightsHandler) Request(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req requestRightRequest
	if !decodeBody(w, r, &req) {
		return
	}
	capital, ok := parseAmount(w, "capital_limit", req.CapitalLimit)
	if !ok {
		return
	}
	stake, ok := parseAmount(w, "stake", req.Stake)
	if !ok {
		return
	}
	dur, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration: "+err.Error())
		return
	}

	right, err := h.rights.RequestRight(r.Context(), domain.RightRequest{
		Executor:      caller,
		CapitalLimit:  capital,
		Duration:      dur,
		Constraints:   req.Constraints,
		Fees:          domain.Fees{BaseFeeAprBps: req.Fees.BaseFeeAprBps, ProfitShareBps: req.Fees.ProfitShareBps},
		StakeProvided: stake,
	})
	if err != nil {
		writeLedgerError(w, r, h.logger, "request right", err)
		return
	}
	writeJSON(w, http.StatusCreated, right)
}

// Get returns a right with its open positions and, once closed, its
// settlement record.
// GET /api/rights/{id}
func (h *RightsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	right, err := h.rights.Right(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "get right", err)
		return
	}
	resp := rightResponse{Right: right, Positions: h.rights.Positions(id)}
	if resp.Positions == nil {
		resp.Positions = []domain.Position{}
	}
	if right.Status.Terminal() {
		rec, err := h.rights.Settlement(id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			writeLedgerError(w, r, h.logger, "get right", err)
			return
		}
		if err == nil {
			resp.Settlement = &rec
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// List returns rights filtered by owner and status.
// GET /api/rights?owner=0x...&status=active&expired=true&limit=50&offset=0
func (h *RightsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f domain.RightFilter
	f.Limit, f.Offset = parsePage(r)

	if raw := q.Get("owner"); raw != "" {
		owner, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "owner: "+err.Error())
			return
		}
		f.Owner = &owner
	}
	if raw := q.Get("status"); raw != "" {
		f.Status = domain.RightStatus(strings.ToLower(raw))
	}
	if q.Get("expired") == "true" {
		now := h.now()
		f.ExpiredAt = &now
	}

	rights := h.rights.ListRights(f)
	if rights == nil {
		rights = []domain.CapitalRight{}
	}
	writeJSON(w, http.StatusOK, listRightsResponse{Rights: rights})
}

// Transfer hands the right to a new owner.
// POST /api/rights/{id}/transfer
func (h *RightsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "new_owner: "+err.Error())
		return
	}

	if err := h.rights.Transfer(r.Context(), id, caller, newOwner); err != nil {
		writeLedgerError(w, r, h.logger, "transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"right_id": id, "owner": newOwner})
}

// Valid reports whether the right is active and unexpired.
// GET /api/rights/{id}/valid
func (h *RightsHandler) Valid(w http.ResponseWriter, r *http.Request) {
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"right_id": id, "valid": h.rights.IsValid(id)})
}

// OpenPosition books an adapter-reported open against the right. The caller
// must be the adapter.
// POST /api/rights/{id}/positions/open
func (h *RightsHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req openPositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	adapter, err := parseAddress(req.Adapter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "adapter: "+err.Error())
		return
	}
	entry, ok := parseAmount(w, "entry_value", req.EntryValue)
	if !ok {
		return
	}

	p, err := h.rights.RecordOpen(r.Context(), id, caller, adapter, req.Asset, req.Size, entry)
	if err != nil {
		writeLedgerError(w, r, h.logger, "open position", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ClosePosition closes a position at the reported exit value, or at the
// oracle mark when none is given. The caller must be the adapter.
// POST /api/rights/{id}/positions/close
func (h *RightsHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := rightID(w, r)
	if !ok {
		return
	}
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	var req closePositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	adapter, err := parseAddress(req.Adapter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "adapter: "+err.Error())
		return
	}

	var realized domain.Amount
	if req.ExitValue == "" {
		realized, err = h.rights.RecordClose(r.Context(), id, caller, adapter, req.Asset)
	} else {
		exit, ok := parseAmount(w, "exit_value", req.ExitValue)
		if !ok {
			return
		}
		realized, err = h.rights.RecordCloseAt(r.Context(), id, caller, adapter, req.Asset, exit)
	}
	if err != nil {
		writeLedgerError(w, r, h.logger, "close position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"right_id": id, "realized_pnl": realized})
}
