package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ertledger/internal/crypto"
	"github.com/alanyoungcy/ertledger/internal/server"
	"github.com/alanyoungcy/ertledger/internal/server/handler"
	"github.com/alanyoungcy/ertledger/internal/server/ws"
	"github.com/alanyoungcy/ertledger/internal/service"
)

const shutdownTimeout = 5 * time.Second

// APIMode serves the HTTP and WebSocket API. Expired rights are left to a
// keeper process.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPublisher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// KeeperMode runs only the force-settlement loop.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPublisher(ctx, g, deps)
	if err := a.startKeeper(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs the API, the keeper and the archive job in one process, each
// gated by its own enabled flag.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("server", a.cfg.RunsServer()),
		slog.Bool("keeper", a.cfg.RunsKeeper()),
		slog.Bool("archive", deps.Archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startPublisher(ctx, g, deps)

	if a.cfg.RunsServer() {
		a.startHTTPServer(ctx, g, deps)
	}
	if a.cfg.RunsKeeper() {
		if err := a.startKeeper(ctx, g, deps); err != nil {
			return err
		}
	}
	if deps.Archiver != nil {
		runner := service.NewArchiveRunner(deps.Archiver,
			a.cfg.Archive.Interval.Duration, a.cfg.Archive.LookbackDays, a.logger)
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}
	return g.Wait()
}

func (a *App) startPublisher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Publisher.Run(ctx)
	})
}

func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	addr, err := keeperAddress(a.cfg)
	if err != nil {
		return err
	}
	keeper := service.NewKeeper(deps.Gateway, addr, a.cfg.Keeper.Interval.Duration, a.logger)
	g.Go(func() error {
		return keeper.Run(ctx)
	})
	return nil
}

// startHTTPServer adds the API server and its WebSocket hub to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	gw := deps.Gateway

	hub := ws.NewHub(deps.Bus, ws.Config{
		Channel: service.LedgerChannel,
		Stream:  service.LedgerStream,
		Status: func() any {
			return map[string]any{
				"mode":    a.cfg.Mode,
				"pool":    gw.PoolState(),
				"paused":  gw.IsPaused(),
				"breaker": gw.BreakerState(),
			}
		},
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var verifier *crypto.Verifier
	if id := a.cfg.Server.SignatureChainID; id != 0 {
		verifier = crypto.NewVerifier(id, a.cfg.Server.SignatureMaxSkew.Duration)
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RateLimit:         a.cfg.Server.RateLimit,
		RateBurst:         a.cfg.Server.RateBurst,
		Signatures:        verifier,
		RequireSignatures: a.cfg.Server.RequireSignatures,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(gw, deps.Checks, a.logger),
		Pool:        handler.NewPoolHandler(gw, a.logger),
		Rights:      handler.NewRightsHandler(gw, a.logger),
		Settlements: handler.NewSettlementHandler(gw, a.logger),
		Risk:        handler.NewRiskHandler(gw, a.logger),
		Admin:       handler.NewAdminHandler(gw, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
