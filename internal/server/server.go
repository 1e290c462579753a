package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/ertledger/internal/crypto"
	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/server/handler"
	"github.com/alanyoungcy/ertledger/internal/server/middleware"
	"github.com/alanyoungcy/ertledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64
	RateBurst int
	// Signatures, when set, checks EIP-712 caller signatures.
	Signatures        *crypto.Verifier
	RequireSignatures bool
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Pool        *handler.PoolHandler
	Rights      *handler.RightsHandler
	Settlements *handler.SettlementHandler
	Risk        *handler.RiskHandler
	Admin       *handler.AdminHandler
}

// Server is the HTTP + WebSocket API in front of the ledger gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Pool.
	mux.HandleFunc("POST /api/pool/deposit", handlers.Pool.Deposit)
	mux.HandleFunc("POST /api/pool/withdraw", handlers.Pool.Withdraw)
	mux.HandleFunc("GET /api/pool", handlers.Pool.State)

	// Rights and positions.
	mux.HandleFunc("POST /api/rights", handlers.Rights.Request)
	mux.HandleFunc("GET /api/rights", handlers.Rights.List)
	mux.HandleFunc("GET /api/rights/{id}", handlers.Rights.Get)
	mux.HandleFunc("POST /api/rights/{id}/transfer", handlers.Rights.Transfer)
	mux.HandleFunc("GET /api/rights/{id}/valid", handlers.Rights.Valid)
	mux.HandleFunc("POST /api/rights/{id}/positions/open", handlers.Rights.OpenPosition)
	mux.HandleFunc("POST /api/rights/{id}/positions/close", handlers.Rights.ClosePosition)

	// Settlement.
	mux.HandleFunc("POST /api/rights/{id}/settle", handlers.Settlements.Settle(domain.SettlementNormal))
	mux.HandleFunc("POST /api/rights/{id}/settle-early", handlers.Settlements.Settle(domain.SettlementEarly))
	mux.HandleFunc("POST /api/rights/{id}/force-settle", handlers.Settlements.Settle(domain.SettlementForced))
	mux.HandleFunc("GET /api/rights/{id}/can-settle", handlers.Settlements.CanSettle)
	mux.HandleFunc("GET /api/rights/{id}/estimate", handlers.Settlements.Estimate)

	// Risk views.
	mux.HandleFunc("GET /api/exposure", handlers.Risk.Exposure)
	mux.HandleFunc("GET /api/executors/{address}", handlers.Risk.Executor)

	// Admin.
	mux.HandleFunc("POST /api/admin/adapters", handlers.Admin.SetAdapters)
	mux.HandleFunc("POST /api/admin/tier", handlers.Admin.SetTier)
	mux.HandleFunc("POST /api/admin/ban", handlers.Admin.Ban)
	mux.HandleFunc("POST /api/admin/unban", handlers.Admin.Unban)
	mux.HandleFunc("POST /api/admin/whitelist", handlers.Admin.Whitelist)
	mux.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)
	mux.HandleFunc("POST /api/admin/unpause", handlers.Admin.Unpause)
	mux.HandleFunc("POST /api/admin/breaker/reset", handlers.Admin.ResetBreaker)
	mux.HandleFunc("POST /api/admin/breaker/threshold", handlers.Admin.SetBreakerThreshold)
	mux.HandleFunc("POST /api/admin/insurance/deposit", handlers.Admin.DepositInsurance)
	mux.HandleFunc("POST /api/admin/insurance/payout", handlers.Admin.PayoutInsurance)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.CallerSignature(cfg.Signatures, cfg.RequireSignatures)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if cfg.RateLimit > 0 {
		h = middleware.RateLimit(middleware.NewIPLimiter(cfg.RateLimit, cfg.RateBurst))(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
