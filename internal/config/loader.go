package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ERTLEDGER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ERTLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Driver, "ERTLEDGER_STORE_DRIVER")
	setStr(&cfg.SQLite.Path, "ERTLEDGER_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ERTLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "ERTLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ERTLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ERTLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ERTLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ERTLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ERTLEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ERTLEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ERTLEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ERTLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ERTLEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ERTLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ERTLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ERTLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ERTLEDGER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ERTLEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ERTLEDGER_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "ERTLEDGER_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ERTLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ERTLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "ERTLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ERTLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ERTLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ERTLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ERTLEDGER_S3_FORCE_PATH_STYLE")

	// ── Risk policy ──
	setUint32(&cfg.Pool.MaxUtilizationBps, "ERTLEDGER_POOL_MAX_UTILIZATION_BPS")
	setUint32(&cfg.Pool.InsuranceFeeBps, "ERTLEDGER_POOL_INSURANCE_FEE_BPS")
	setAmount(&cfg.Breaker.Threshold, "ERTLEDGER_BREAKER_THRESHOLD")
	setDuration(&cfg.Breaker.Window, "ERTLEDGER_BREAKER_WINDOW")
	setAmount(&cfg.Insurance.Target, "ERTLEDGER_INSURANCE_TARGET")
	setDuration(&cfg.Oracle.MaxPriceAge, "ERTLEDGER_ORACLE_MAX_PRICE_AGE")

	// ── Operators ──
	setStringSlice(&cfg.Admin.Addresses, "ERTLEDGER_ADMIN_ADDRESSES")
	setBool(&cfg.Keeper.Enabled, "ERTLEDGER_KEEPER_ENABLED")
	setStr(&cfg.Keeper.Address, "ERTLEDGER_KEEPER_ADDRESS")
	setDuration(&cfg.Keeper.Interval, "ERTLEDGER_KEEPER_INTERVAL")
	setBool(&cfg.Archive.Enabled, "ERTLEDGER_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ERTLEDGER_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.LookbackDays, "ERTLEDGER_ARCHIVE_LOOKBACK_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ERTLEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ERTLEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ERTLEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ERTLEDGER_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimit, "ERTLEDGER_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "ERTLEDGER_SERVER_RATE_BURST")
	setUint64(&cfg.Server.SignatureChainID, "ERTLEDGER_SERVER_SIGNATURE_CHAIN_ID")
	setBool(&cfg.Server.RequireSignatures, "ERTLEDGER_SERVER_REQUIRE_SIGNATURES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ERTLEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ERTLEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ERTLEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ERTLEDGER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ERTLEDGER_MODE")
	setStr(&cfg.LogLevel, "ERTLEDGER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setAmount(dst *amount, key string) {
	if v := os.Getenv(key); v != "" {
		var a amount
		if err := a.UnmarshalText([]byte(v)); err == nil {
			*dst = a
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
