// Package config defines the top-level configuration for the ERT ledger
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ERTLEDGER_* environment variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	SQLite    SQLiteConfig    `toml:"sqlite"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Pool      PoolConfig      `toml:"pool"`
	Tiers     []TierConfig    `toml:"tiers"`
	Exposure  ExposureConfig  `toml:"exposure"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Insurance InsuranceConfig `toml:"insurance"`
	Oracle    OracleConfig    `toml:"oracle"`
	Admin     AdminConfig     `toml:"admin"`
	Keeper    KeeperConfig    `toml:"keeper"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig selects the durable ledger store.
type StoreConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the single-node store file.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. When disabled the service
// runs with in-process locks and event bus and has no price oracle.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PoolConfig holds utilization and fee policy.
type PoolConfig struct {
	MaxUtilizationBps uint32   `toml:"max_utilization_bps"`
	MinBaseFeeAprBps  uint32   `toml:"min_base_fee_apr_bps"`
	MinProfitShareBps uint32   `toml:"min_profit_share_bps"`
	InsuranceFeeBps   uint32   `toml:"insurance_fee_bps"`
	MaxRightDuration  duration `toml:"max_right_duration"`
}

// TierConfig overrides one entry of the tier table.
//
//	[[tiers]]
//	name = "verified"
//	max_capital = "75000"
type TierConfig struct {
	Name             string `toml:"name"`
	MaxCapital       amount `toml:"max_capital"`
	StakeRequiredBps uint32 `toml:"stake_required_bps"`
	MaxDrawdownBps   uint32 `toml:"max_drawdown_bps"`
	AllowedRiskLevel string `toml:"allowed_risk_level"`
}

// ExposureConfig holds per-asset concentration caps.
type ExposureConfig struct {
	DefaultAssetCapBps uint32            `toml:"default_asset_cap_bps"`
	NearLimitBps       uint32            `toml:"near_limit_bps"`
	AssetCaps          map[string]amount `toml:"asset_caps"`
}

// BreakerConfig holds the circuit breaker policy.
type BreakerConfig struct {
	Threshold              amount   `toml:"threshold"`
	Window                 duration `toml:"window"`
	BlockSettlementsOnTrip bool     `toml:"block_settlements_on_trip"`
}

type InsuranceConfig struct {
	Target amount `toml:"target"`
}

type OracleConfig struct {
	MaxPriceAge duration `toml:"max_price_age"`
}

// AdminConfig lists the addresses allowed to call admin operations.
type AdminConfig struct {
	Addresses []string `toml:"addresses"`
}

// KeeperConfig controls the expired-right force-settlement loop.
type KeeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Address  string   `toml:"address"`
	Interval duration `toml:"interval"`
}

// ArchiveConfig controls the daily S3 archive job.
type ArchiveConfig struct {
	Enabled      bool     `toml:"enabled"`
	Interval     duration `toml:"interval"`
	LookbackDays int      `toml:"lookback_days"`
}

type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   float64  `toml:"rate_limit"`
	RateBurst   int      `toml:"rate_burst"`

	// SignatureChainID enables EIP-712 caller signatures for this chain ID;
	// zero disables them.
	SignatureChainID  uint64   `toml:"signature_chain_id"`
	RequireSignatures bool     `toml:"require_signatures"`
	SignatureMaxSkew  duration `toml:"signature_max_skew"`
}

type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// EventBuffer is the number of committed events queued for publishing.
	EventBuffer int `toml:"event_buffer"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// amount decodes a decimal string such as "50000" or "12.5" into a
// domain.Amount.
type amount struct {
	domain.Amount
}

func (a *amount) UnmarshalText(text []byte) error {
	var err error
	a.Amount, err = domain.ParseAmount(string(text))
	return err
}

func (a amount) MarshalText() ([]byte, error) {
	return []byte(a.Amount.String()), nil
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	def := ledger.DefaultConfig()
	return Config{
		Store:  StoreConfig{Driver: "sqlite"},
		SQLite: SQLiteConfig{Path: "ertledger.db"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ertledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "ertledger:",
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ertledger-archive",
			ForcePathStyle: true,
		},
		Pool: PoolConfig{
			MaxUtilizationBps: def.MaxUtilizationBps,
			MinBaseFeeAprBps:  def.MinBaseFeeAprBps,
			MinProfitShareBps: def.MinProfitShareBps,
			InsuranceFeeBps:   def.InsuranceFeeBps,
			MaxRightDuration:  duration{def.MaxRightDuration},
		},
		Exposure: ExposureConfig{
			DefaultAssetCapBps: def.DefaultAssetCapBps,
			NearLimitBps:       def.NearLimitBps,
			AssetCaps:          map[string]amount{},
		},
		Breaker: BreakerConfig{
			Threshold:              amount{def.BreakerThreshold},
			Window:                 duration{def.BreakerWindow},
			BlockSettlementsOnTrip: def.BlockSettlementsOnTrip,
		},
		Insurance: InsuranceConfig{Target: amount{def.InsuranceTarget}},
		Oracle:    OracleConfig{MaxPriceAge: duration{def.MaxPriceAge}},
		Keeper: KeeperConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:      false,
			Interval:     duration{time.Hour},
			LookbackDays: 7,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:        20,
			RateBurst:        40,
			SignatureMaxSkew: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			EventBuffer: 1024,
		},
		Mode:     "api",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"api":    true,
	"keeper": true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"memory":   true,
}

// RunsKeeper reports whether the keeper loop runs in the configured mode.
func (c *Config) RunsKeeper() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "keeper" || (mode == "full" && c.Keeper.Enabled)
}

// RunsServer reports whether the HTTP API runs in the configured mode.
func (c *Config) RunsServer() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "api" || (mode == "full" && c.Server.Enabled)
}

// Validate checks the configuration for errors and returns a combined error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, keeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	driver := strings.ToLower(c.Store.Driver)
	if !validDrivers[driver] {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite, memory)", c.Store.Driver))
	}
	if driver == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}
	if driver == "sqlite" && strings.TrimSpace(c.SQLite.Path) == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required when archive is enabled")
		}
		if c.Archive.LookbackDays < 1 {
			errs = append(errs, "archive: lookback_days must be >= 1")
		}
	}

	for _, a := range c.Admin.Addresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("admin: invalid address %q", a))
		}
	}
	if c.RunsKeeper() {
		if !common.IsHexAddress(c.Keeper.Address) || common.HexToAddress(c.Keeper.Address) == (common.Address{}) {
			errs = append(errs, fmt.Sprintf("keeper: address must be a non-zero hex address, got %q", c.Keeper.Address))
		}
		if c.Keeper.Interval.Duration <= 0 {
			errs = append(errs, "keeper: interval must be > 0")
		}
	}
	if c.RunsServer() && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RequireSignatures && c.Server.SignatureChainID == 0 {
		errs = append(errs, "server: require_signatures needs signature_chain_id")
	}

	if lc, err := c.LedgerConfig(); err != nil {
		errs = append(errs, err.Error())
	} else if err := lc.Validate(); err != nil {
		errs = append(errs, "ledger: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LedgerConfig converts the policy sections into a ledger.Config. Tier
// entries override the stock table by name; unset numeric fields keep the
// stock value.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	lc := ledger.DefaultConfig()
	lc.MaxUtilizationBps = c.Pool.MaxUtilizationBps
	lc.MinBaseFeeAprBps = c.Pool.MinBaseFeeAprBps
	lc.MinProfitShareBps = c.Pool.MinProfitShareBps
	lc.InsuranceFeeBps = c.Pool.InsuranceFeeBps
	lc.MaxRightDuration = c.Pool.MaxRightDuration.Duration
	lc.DefaultAssetCapBps = c.Exposure.DefaultAssetCapBps
	lc.NearLimitBps = c.Exposure.NearLimitBps
	lc.BreakerThreshold = c.Breaker.Threshold.Amount
	lc.BreakerWindow = c.Breaker.Window.Duration
	lc.BlockSettlementsOnTrip = c.Breaker.BlockSettlementsOnTrip
	lc.InsuranceTarget = c.Insurance.Target.Amount
	lc.MaxPriceAge = c.Oracle.MaxPriceAge.Duration

	lc.AssetCaps = make(map[string]domain.Amount, len(c.Exposure.AssetCaps))
	for asset, limit := range c.Exposure.AssetCaps {
		lc.AssetCaps[asset] = limit.Amount
	}

	for _, t := range c.Tiers {
		tier, err := domain.ParseTier(t.Name)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("tiers: %w", err)
		}
		tc := lc.Tiers[tier]
		if t.MaxCapital.Amount != 0 {
			tc.MaxCapital = t.MaxCapital.Amount
		}
		if t.StakeRequiredBps != 0 {
			tc.StakeRequiredBps = t.StakeRequiredBps
		}
		if t.MaxDrawdownBps != 0 {
			tc.MaxDrawdownBps = t.MaxDrawdownBps
		}
		if t.AllowedRiskLevel != "" {
			risk, err := domain.ParseRiskLevel(t.AllowedRiskLevel)
			if err != nil {
				return ledger.Config{}, fmt.Errorf("tiers: %s: %w", t.Name, err)
			}
			tc.AllowedRiskLevel = risk
		}
		lc.Tiers[tier] = tc
	}

	for _, a := range c.Admin.Addresses {
		if common.IsHexAddress(a) {
			lc.Admins = append(lc.Admins, common.HexToAddress(a))
		}
	}
	return lc, nil
}
