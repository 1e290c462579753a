package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
	"github.com/alanyoungcy/ertledger/internal/server"
	"github.com/alanyoungcy/ertledger/internal/server/handler"
	"github.com/alanyoungcy/ertledger/internal/service"
	"github.com/alanyoungcy/ertledger/internal/store/memory"
)

const (
	admin    = "0x00000000000000000000000000000000000000a1"
	lp       = "0x00000000000000000000000000000000000000b1"
	executor = "0x00000000000000000000000000000000000000c1"
	other    = "0x00000000000000000000000000000000000000c2"
	adapter  = "0x00000000000000000000000000000000000001e1"
)

var discard = slog.New(slog.DiscardHandler)

func newAPI(t *testing.T, cfg server.Config, checks map[string]handler.Check) http.Handler {
	t.Helper()
	lcfg := ledger.DefaultConfig()
	lcfg.Admins = []common.Address{common.HexToAddress(admin)}
	l, err := ledger.Open(context.Background(), memory.New(), lcfg, nil, ledger.WithLogger(discard))
	require.NoError(t, err)
	gw := service.NewGateway(l, nil, 0, discard)

	return server.NewHandler(cfg, server.Handlers{
		Health:      handler.NewHealthHandler(gw, checks, discard),
		Pool:        handler.NewPoolHandler(gw, discard),
		Rights:      handler.NewRightsHandler(gw, discard),
		Settlements: handler.NewSettlementHandler(gw, discard),
		Risk:        handler.NewRiskHandler(gw, discard),
		Admin:       handler.NewAdminHandler(gw, discard),
	}, nil, discard)
}

func do(t *testing.T, h http.Handler, method, path, caller, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(handler.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func seed(t *testing.T, h http.Handler) {
	t.Helper()
	rec, _ := do(t, h, http.MethodPost, "/api/admin/adapters", admin,
		`{"adapters":["`+adapter+`"],"categories":["yield"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, _ = do(t, h, http.MethodPost, "/api/pool/deposit", lp, `{"amount":"10000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

const rightBody = `{
	"capital_limit": "1000",
	"duration": "24h",
	"stake": "500",
	"constraints": {"allowed_adapters": ["` + adapter + `"]}
}`

func TestPool_DepositAndState(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)
	seed(t, h)

	rec, body := do(t, h, http.MethodGet, "/api/pool?holder="+lp, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	vault := body["vault"].(map[string]any)
	assert.EqualValues(t, domain.Units(10_000), vault["total_assets"])
	holder := body["holder"].(map[string]any)
	assert.EqualValues(t, domain.Units(10_000), holder["shares"])
	assert.EqualValues(t, 8000, body["max_utilization_bps"])
}

func TestPool_Validation(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)

	rec, body := do(t, h, http.MethodPost, "/api/pool/deposit", "", `{"amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], handler.CallerHeader)

	rec, _ = do(t, h, http.MethodPost, "/api/pool/deposit", lp, `{"amount":"1.0000001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/pool/deposit", lp, `{"amount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ZERO_AMOUNT", body["code"])

	rec, body = do(t, h, http.MethodPost, "/api/pool/withdraw", lp, `{"shares":"5"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "risk", body["kind"])

	rec, _ = do(t, h, http.MethodPost, "/api/pool/deposit", lp, `{"amount":"1","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRights_Lifecycle(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)
	seed(t, h)

	rec, body := do(t, h, http.MethodPost, "/api/rights", executor, rightBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, body["id"])
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, "low", body["risk_level"])

	rec, body = do(t, h, http.MethodGet, "/api/rights/1/valid", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])

	rec, body = do(t, h, http.MethodGet, "/api/rights?owner="+executor, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["rights"], 1)

	rec, body = do(t, h, http.MethodGet, "/api/rights/1/can-settle?kind=early", other, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["can_settle"])
	assert.Equal(t, domain.ErrUnauthorized.Error(), body["reason"])

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/settle-early", other, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/rights/1/settle-early", executor, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "settled", body["status"])
	assert.Equal(t, "early", body["kind"])

	rec, body = do(t, h, http.MethodGet, "/api/rights/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "settled", body["right"].(map[string]any)["status"])
	assert.NotNil(t, body["settlement"])

	rec, body = do(t, h, http.MethodPost, "/api/rights/1/settle", executor, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_SETTLED", body["code"])
}

func TestRights_Transfer(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)
	seed(t, h)
	rec, _ := do(t, h, http.MethodPost, "/api/rights", executor, rightBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/transfer", other, `{"new_owner":"`+other+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/transfer", executor, `{"new_owner":"`+other+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, body := do(t, h, http.MethodGet, "/api/rights?owner="+other, "", "")
	assert.Len(t, body["rights"], 1)
}

func TestRights_NotFoundAndBadInput(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/rights/42", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/rights/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/rights/1/can-settle?kind=bogus", executor, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/rights", executor, strings.Replace(rightBody, "24h", "soon", 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRights_UnregisteredAdapterRejected(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)
	seed(t, h)
	rec, _ := do(t, h, http.MethodPost, "/api/rights", executor, rightBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/positions/open", "0x00000000000000000000000000000000000009e9",
		`{"adapter":"0x00000000000000000000000000000000000009e9","asset":"ETH","size":1,"entry_value":"100"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPositions_ReportedOnlyByAdapter(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)
	seed(t, h)
	rec, _ := do(t, h, http.MethodPost, "/api/rights", executor, rightBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	const open = `{"adapter":"` + adapter + `","asset":"ETH","size":1,"entry_value":"1000"}`
	const closeHigh = `{"adapter":"` + adapter + `","asset":"ETH","exit_value":"5000"}`

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/positions/open", "", open)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing caller header")
	rec, body := do(t, h, http.MethodPost, "/api/rights/1/positions/open", executor, open)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/positions/open", adapter, open)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/positions/close", "", closeHigh)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/rights/1/positions/close", executor, closeHigh)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/rights/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["right"].(map[string]any)["realized_pnl"], "rejected closes book no profit")

	rec, body = do(t, h, http.MethodPost, "/api/rights/1/positions/close", adapter,
		`{"adapter":"`+adapter+`","asset":"ETH","exit_value":"1000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 0, body["realized_pnl"])
}

func TestAdmin_PauseGatesDeposits(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)

	rec, body := do(t, h, http.MethodPost, "/api/admin/pause", other, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "authorization", body["kind"])

	rec, _ = do(t, h, http.MethodPost, "/api/admin/pause", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/pool/deposit", lp, `{"amount":"10"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "PAUSED", body["code"])

	_, body = do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, true, body["paused"])
}

func TestAdmin_TierAndExecutorView(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)

	rec, _ := do(t, h, http.MethodPost, "/api/admin/tier", admin, `{"executor":"`+executor+`","tier":"verified"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = do(t, h, http.MethodPost, "/api/admin/tier", admin, `{"executor":"`+executor+`","tier":"legendary"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, h, http.MethodGet, "/api/executors/"+executor, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", body["reputation"].(map[string]any)["tier"])
	assert.EqualValues(t, domain.Units(50_000), body["tier_config"].(map[string]any)["max_capital"])
}

func TestAdmin_InsurancePayoutCapped(t *testing.T) {
	h := newAPI(t, server.Config{}, nil)

	rec, _ := do(t, h, http.MethodPost, "/api/admin/insurance/deposit", admin, `{"amount":"300"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := do(t, h, http.MethodPost, "/api/admin/insurance/payout", admin, `{"to":"`+lp+`","amount":"500"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, domain.Units(300), body["paid"])
}

func TestAuth_HealthStaysOpen(t *testing.T) {
	h := newAPI(t, server.Config{APIKey: "secret"}, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/pool", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/pool", nil)
	req.Header.Set("Authorization", "Bearer secret")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)
}

func TestHealth_DegradedDependency(t *testing.T) {
	h := newAPI(t, server.Config{}, map[string]handler.Check{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec, body := do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["store"])
	assert.Equal(t, "connection refused", deps["redis"])
}

func TestRateLimit(t *testing.T) {
	h := newAPI(t, server.Config{RateLimit: 0.001, RateBurst: 1}, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/pool", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/pool", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORS_Preflight(t *testing.T) {
	h := newAPI(t, server.Config{CORSOrigins: []string{"https://app.example"}}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/pool/deposit", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), handler.CallerHeader)
}
