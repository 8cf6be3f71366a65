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
// built-in defaults, applies SYNCENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SYNCENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.Source, "SYNCENGINE_CHAIN_SOURCE")
	setStr(&cfg.Chain.RPCURL, "SYNCENGINE_CHAIN_RPC_URL")
	setUint64(&cfg.Chain.Confirmations, "SYNCENGINE_CHAIN_CONFIRMATIONS")
	setDuration(&cfg.Chain.PollInterval, "SYNCENGINE_CHAIN_POLL_INTERVAL")
	setDuration(&cfg.Chain.TickTimeout, "SYNCENGINE_CHAIN_TICK_TIMEOUT")
	setUint64(&cfg.Chain.BatchBlocks, "SYNCENGINE_CHAIN_BATCH_BLOCKS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "SYNCENGINE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "SYNCENGINE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "SYNCENGINE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SYNCENGINE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SYNCENGINE_DATABASE_NAME")
	setStr(&cfg.Database.User, "SYNCENGINE_DATABASE_USER")
	setStr(&cfg.Database.Password, "SYNCENGINE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SYNCENGINE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SYNCENGINE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SYNCENGINE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SYNCENGINE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SYNCENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SYNCENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SYNCENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SYNCENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SYNCENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SYNCENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SYNCENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SYNCENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SYNCENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SYNCENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SYNCENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SYNCENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SYNCENGINE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SYNCENGINE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SYNCENGINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SYNCENGINE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SYNCENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SYNCENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SYNCENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SYNCENGINE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SYNCENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SYNCENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.WebhookURL, "SYNCENGINE_NOTIFY_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SYNCENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Storage, "SYNCENGINE_STORAGE")
	setStr(&cfg.Mode, "SYNCENGINE_MODE")
	setStr(&cfg.LogLevel, "SYNCENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
