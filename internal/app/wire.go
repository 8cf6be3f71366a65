package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brixmarket/syncengine/internal/archive"
	s3blob "github.com/brixmarket/syncengine/internal/blob/s3"
	"github.com/brixmarket/syncengine/internal/cache/redis"
	"github.com/brixmarket/syncengine/internal/chain/ethereum"
	"github.com/brixmarket/syncengine/internal/chain/mock"
	"github.com/brixmarket/syncengine/internal/config"
	"github.com/brixmarket/syncengine/internal/domain"
	"github.com/brixmarket/syncengine/internal/notify"
	"github.com/brixmarket/syncengine/internal/store/memory"
	"github.com/brixmarket/syncengine/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	Registry *domain.AssetRegistry

	// Stores
	Orders    domain.OrderStore
	Trades    domain.TradeStore
	Ledger    domain.LedgerStore
	Cursors   domain.CursorStore
	Incidents domain.IncidentStore
	Audit     domain.AuditStore
	Applier   domain.EventApplier

	// Chain
	Source   domain.EventSource     // nil in server mode
	Balances domain.BalanceProvider // nil when unavailable

	// Redis (nil in standalone mode)
	BookCache   domain.BookCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager

	// Blob storage (nil unless archival is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver
	Pruners    []archive.Pruner

	// Notifications
	Notifier *notify.Notifier
}

// needsChain returns true for modes that consume chain events.
func needsChain(mode string) bool {
	switch mode {
	case "indexer", "full", "standalone":
		return true
	default:
		return false
	}
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

	mode := strings.ToLower(cfg.Mode)
	standalone := mode == "standalone"

	contracts := make([]domain.AssetContract, len(cfg.Contracts))
	for i, ct := range cfg.Contracts {
		contracts[i] = domain.AssetContract{
			AssetID:      ct.AssetID,
			Symbol:       ct.Symbol,
			Name:         ct.Name,
			Contract:     ct.Address,
			TokenAddress: ct.TokenAddress,
		}
	}

	deps := &Dependencies{
		Registry: domain.NewAssetRegistry(contracts),
	}

	// --- Stores ---
	// Standalone mode is fully self-contained and always runs in memory.
	if standalone || strings.ToLower(cfg.Storage) == "memory" {
		store := memory.New()
		deps.Orders = store.Orders()
		deps.Trades = store.Trades()
		deps.Ledger = store.Ledger()
		deps.Cursors = store.Cursors()
		deps.Incidents = store.Incidents()
		deps.Audit = store.Audit()
		deps.Applier = memory.NewApplier(store)
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Cursors = postgres.NewCursorStore(pool)
		deps.Incidents = postgres.NewIncidentStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Applier = postgres.NewApplier(pool)
	}

	// --- Chain event source ---
	if needsChain(mode) {
		if standalone || strings.ToLower(cfg.Chain.Source) == "mock" {
			src := mock.New()
			deps.Source = src
			deps.Balances = src
		} else {
			src, err := ethereum.NewSource(ctx, cfg.Chain.RPCURL, cfg.Chain.Confirmations, contracts)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: ethereum: %w", err)
			}
			closers = append(closers, src.Close)
			deps.Source = src

			balances, err := ethereum.NewBalanceProvider(src)
			if err != nil {
				logger.WarnContext(ctx, "wire: balance provider unavailable, serving ledger balances",
					slog.String("error", err.Error()),
				)
			} else {
				deps.Balances = balances
			}
		}
	}

	// --- Redis (skipped in standalone mode) ---
	if !standalone {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookCache = redis.NewBookCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled && !standalone {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		trades, tok := deps.Trades.(s3blob.TradeArchiveStore)
		ledger, lok := deps.Ledger.(s3blob.LedgerArchiveStore)
		audit, aok := deps.Audit.(s3blob.AuditArchiveStore)
		if tok && lok && aok {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, trades, ledger, audit, deps.Audit)
			if cfg.Archive.Prune {
				// The ledger is never pruned: wallet balances and locks
				// are sums over the full entry history, so deleting old
				// rows would corrupt them. Only trades and audit rows
				// are safe to drop once archived.
				for _, s := range []any{deps.Trades, deps.Audit} {
					if p, ok := s.(archive.Pruner); ok {
						deps.Pruners = append(deps.Pruners, p)
					}
				}
			}
		} else {
			logger.WarnContext(ctx, "wire: archival enabled but store backend does not support it")
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
