// Package config defines the top-level configuration for the sync engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SYNCENGINE_* environment variables.
type Config struct {
	Chain     ChainConfig      `toml:"chain"`
	Contracts []ContractConfig `toml:"contracts"`
	Database  DatabaseConfig   `toml:"database"`
	Redis     RedisConfig      `toml:"redis"`
	S3        S3Config         `toml:"s3"`
	Archive   ArchiveConfig    `toml:"archive"`
	Server    ServerConfig     `toml:"server"`
	Notify    NotifyConfig     `toml:"notify"`
	Storage   string           `toml:"storage"`
	Mode      string           `toml:"mode"`
	LogLevel  string           `toml:"log_level"`
}

// ChainConfig holds chain connectivity and polling parameters.
type ChainConfig struct {
	// Source selects the event source: "ethereum" (JSON-RPC) or "mock"
	// (in-process, for standalone mode).
	Source string `toml:"source"`
	RPCURL string `toml:"rpc_url"`
	// Confirmations is how many blocks behind the head the indexer trails.
	// Events shallower than this are not consumed.
	Confirmations uint64   `toml:"confirmations"`
	PollInterval  duration `toml:"poll_interval"`
	// TickTimeout bounds one poll-and-apply cycle per contract.
	TickTimeout duration `toml:"tick_timeout"`
	// BatchBlocks caps the block span fetched per tick.
	BatchBlocks uint64 `toml:"batch_blocks"`
}

// ContractConfig binds one monitored market contract to its asset.
type ContractConfig struct {
	AssetID      string `toml:"asset_id"`
	Symbol       string `toml:"symbol"`
	Name         string `toml:"name"`
	Address      string `toml:"address"`
	TokenAddress string `toml:"token_address"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	// Prune deletes archived trade and audit rows from the database after
	// a fully successful cycle. The ledger is never pruned; balances sum
	// its full history. Off by default: archival copies, deletion is a
	// deliberate second step.
	Prune bool `toml:"prune"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds operator alert channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	WebhookURL     string   `toml:"webhook_url"`
	Events         []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Source:        "ethereum",
			RPCURL:        "http://localhost:8545",
			Confirmations: 12,
			PollInterval:  duration{5 * time.Second},
			TickTimeout:   duration{30 * time.Second},
			BatchBlocks:   2000,
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "syncengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "syncengine-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"quarantine", "reorg", "ledger_drift", "error"},
		},
		Storage:  "postgres",
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"indexer":    true,
	"server":     true,
	"full":       true,
	"standalone": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSources enumerates the accepted values for ChainConfig.Source.
var validSources = map[string]bool{
	"ethereum": true,
	"mock":     true,
}

// validStorage enumerates the accepted values for Config.Storage.
var validStorage = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: indexer, server, full, standalone)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	if !validStorage[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}

	// Chain
	if !validSources[strings.ToLower(c.Chain.Source)] {
		errs = append(errs, fmt.Sprintf("chain: unknown source %q (valid: ethereum, mock)", c.Chain.Source))
	}
	if c.Chain.Source == "ethereum" && c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty for the ethereum source")
	}
	if c.Chain.PollInterval.Duration <= 0 {
		errs = append(errs, "chain: poll_interval must be positive")
	}
	if c.Chain.TickTimeout.Duration <= 0 {
		errs = append(errs, "chain: tick_timeout must be positive")
	}
	if c.Chain.BatchBlocks == 0 {
		errs = append(errs, "chain: batch_blocks must be >= 1")
	}

	// Contracts
	if c.Mode != "server" && len(c.Contracts) == 0 {
		errs = append(errs, "contracts: at least one [[contracts]] entry is required for mode "+c.Mode)
	}
	seenAssets := map[string]bool{}
	seenAddrs := map[string]bool{}
	for i, ct := range c.Contracts {
		if ct.AssetID == "" {
			errs = append(errs, fmt.Sprintf("contracts[%d]: asset_id must not be empty", i))
		}
		if ct.Address == "" {
			errs = append(errs, fmt.Sprintf("contracts[%d]: address must not be empty", i))
		}
		if seenAssets[ct.AssetID] {
			errs = append(errs, fmt.Sprintf("contracts[%d]: duplicate asset_id %q", i, ct.AssetID))
		}
		if ct.Address != "" && seenAddrs[strings.ToLower(ct.Address)] {
			errs = append(errs, fmt.Sprintf("contracts[%d]: duplicate address %q", i, ct.Address))
		}
		seenAssets[ct.AssetID] = true
		seenAddrs[strings.ToLower(ct.Address)] = true
	}

	// Database -- only required for the postgres backend.
	if strings.ToLower(c.Storage) == "postgres" {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 -- only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
