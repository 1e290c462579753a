package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/ertledger/internal/blob/s3"
	"github.com/alanyoungcy/ertledger/internal/cache/redis"
	"github.com/alanyoungcy/ertledger/internal/config"
	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
	"github.com/alanyoungcy/ertledger/internal/notify"
	"github.com/alanyoungcy/ertledger/internal/server/handler"
	"github.com/alanyoungcy/ertledger/internal/service"
	"github.com/alanyoungcy/ertledger/internal/store/memory"
	"github.com/alanyoungcy/ertledger/internal/store/postgres"
	"github.com/alanyoungcy/ertledger/internal/store/sqlite"
)

// HistoryStore is a LedgerStore that can also list its event log and
// settlement records. Every store driver satisfies it.
type HistoryStore interface {
	domain.LedgerStore
	domain.EventStore
	domain.SettlementStore
}

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store  HistoryStore
	Oracle domain.PriceOracle
	Locks  domain.LockManager
	Bus    domain.EventBus

	// Archiver is nil unless archive.enabled is set.
	Archiver domain.Archiver

	Notifier  *notify.Notifier
	Publisher *service.EventPublisher
	Ledger    *ledger.Ledger
	Gateway   *service.Gateway

	// Checks are the dependency probes reported by GET /api/health.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: map[string]handler.Check{}}

	// --- Ledger store ---
	switch strings.ToLower(cfg.Store.Driver) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Store = postgres.NewLedgerStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.Store = st
		deps.Checks["sqlite"] = st.Ping
	case "memory":
		logger.WarnContext(ctx, "wire: memory store selected, ledger state is lost on exit")
		deps.Store = memory.New()
	default:
		return fail("store", fmt.Errorf("unknown driver %q", cfg.Store.Driver))
	}

	// --- Redis: oracle, locks, event bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Oracle = redis.NewOracle(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.InfoContext(ctx, "wire: redis disabled, using in-process locks and event bus; marks are unavailable")
		deps.Locks = service.NewLocalLocks()
		deps.Bus = service.NewLocalBus()
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Store,
			deps.Store,
			logger,
		)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	var alerter service.Alerter
	if len(senders) > 0 {
		alerter = deps.Notifier
	}
	deps.Publisher = service.NewEventPublisher(deps.Bus, alerter, cfg.Notify.EventBuffer, logger)

	// --- Ledger and gateway ---
	lcfg, err := cfg.LedgerConfig()
	if err != nil {
		return fail("ledger config", err)
	}
	opts := []ledger.Option{
		ledger.WithEventSink(deps.Publisher),
		ledger.WithLogger(logger),
	}
	l, err := ledger.Open(ctx, deps.Store, lcfg, deps.Oracle, opts...)
	if err != nil {
		return fail("ledger", err)
	}
	deps.Ledger = l
	deps.Gateway = service.NewGateway(l, deps.Locks, cfg.Redis.LockTTL.Duration, logger)

	return deps, cleanup, nil
}

// keeperAddress parses the configured keeper address.
func keeperAddress(cfg *config.Config) (common.Address, error) {
	if !common.IsHexAddress(cfg.Keeper.Address) {
		return common.Address{}, fmt.Errorf("keeper: invalid address %q", cfg.Keeper.Address)
	}
	return common.HexToAddress(cfg.Keeper.Address), nil
}
