package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brixmarket/syncengine/internal/archive"
	"github.com/brixmarket/syncengine/internal/chain/mock"
	"github.com/brixmarket/syncengine/internal/domain"
	"github.com/brixmarket/syncengine/internal/indexer"
	"github.com/brixmarket/syncengine/internal/server"
	"github.com/brixmarket/syncengine/internal/server/handler"
	"github.com/brixmarket/syncengine/internal/server/ws"
	"github.com/brixmarket/syncengine/internal/service"
)

// IndexerMode runs the chain indexer (and the archive job, when enabled)
// without the HTTP API.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: indexer")
	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIndexer(ctx, g, deps); err != nil {
		return err
	}
	a.startArchiveJob(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the HTTP + WebSocket query API over an already-populated
// store, without consuming chain events.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: server")
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the indexer and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: full")
	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIndexer(ctx, g, deps); err != nil {
		return err
	}
	a.startArchiveJob(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// StandaloneMode runs a fully self-contained demo: an in-memory store, a
// scripted mock chain seeded with a small order lifecycle per contract, the
// indexer, and the HTTP API. No external services are required.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: standalone")

	if src, ok := deps.Source.(*mock.Source); ok {
		a.seedDemoChain(src, deps.Registry.List())
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIndexer(ctx, g, deps); err != nil {
		return err
	}
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startIndexer adds the indexer goroutine to the given errgroup.
func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	var opts []indexer.Option
	if deps.SignalBus != nil {
		opts = append(opts, indexer.WithSignalBus(deps.SignalBus))
	}
	if deps.BookCache != nil {
		opts = append(opts, indexer.WithBookCache(deps.BookCache))
	}
	if deps.Notifier != nil {
		opts = append(opts, indexer.WithAlerter(deps.Notifier))
	}
	if deps.Audit != nil {
		opts = append(opts, indexer.WithAudit(deps.Audit))
	}

	ix, err := indexer.New(
		deps.Source,
		deps.Applier,
		deps.Cursors,
		deps.Registry.List(),
		indexer.Config{
			PollInterval: a.cfg.Chain.PollInterval.Duration,
			TickTimeout:  a.cfg.Chain.TickTimeout.Duration,
			BatchBlocks:  a.cfg.Chain.BatchBlocks,
		},
		a.logger,
		opts...,
	)
	if err != nil {
		return fmt.Errorf("app: indexer: %w", err)
	}

	g.Go(func() error {
		return ix.Run(ctx)
	})
	return nil
}

// startArchiveJob adds the periodic cold-storage archive job to the errgroup
// when archival is enabled and an archiver was wired.
func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}

	var opts []archive.Option
	if len(deps.Pruners) > 0 {
		opts = append(opts, archive.WithPruners(deps.Pruners...))
	}

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	job, err := archive.New(
		deps.Archiver,
		deps.LockManager,
		retention,
		a.cfg.Archive.Interval.Duration,
		a.logger,
		opts...,
	)
	if err != nil {
		a.logger.WarnContext(ctx, "archive job disabled",
			slog.String("error", err.Error()),
		)
		return
	}

	g.Go(func() error {
		return job.Run(ctx)
	})
}

// startHTTPServer builds the query services and handlers, registers the
// WebSocket hub when a signal bus is available, and adds the HTTP server
// goroutines to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	books := service.NewBookService(deps.Orders, deps.BookCache, deps.Registry, a.logger)
	balances := service.NewBalanceService(deps.Ledger, deps.Balances, deps.Incidents, deps.Registry, a.logger)
	candles := service.NewCandleService(deps.Orders, deps.Trades, deps.Registry, a.logger)
	stats := service.NewStatsService(deps.Trades, deps.Registry, a.logger)

	var archives *handler.ArchiveHandler
	if deps.BlobReader != nil {
		archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Assets:    handler.NewAssetHandler(deps.Registry, stats, a.logger),
			Books:     handler.NewBookHandler(books, a.logger),
			Trades:    handler.NewTradeHandler(deps.Trades, deps.Registry, a.logger),
			Candles:   handler.NewCandleHandler(candles, a.logger),
			Wallets:   handler.NewWalletHandler(balances, deps.Orders, deps.Trades, a.logger),
			Incidents: handler.NewIncidentHandler(deps.Incidents, deps.Audit, a.logger),
			Cursors:   handler.NewCursorHandler(deps.Cursors, deps.Audit, a.logger),
			Archives:  archives,
		},
		hub,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// seedDemoChain scripts a small order lifecycle per configured contract so
// standalone mode has data to serve: two resting sells, a partial fill, and
// a cancel.
func (a *App) seedDemoChain(src *mock.Source, contracts []domain.AssetContract) {
	now := time.Now().UTC().Add(-10 * time.Minute)

	for i, c := range contracts {
		base := int64(i+1) * 100

		src.Append(
			domain.ChainEvent{
				Kind: domain.EventOrderCreated, Contract: c.Contract, AssetID: c.AssetID,
				BlockNumber: 1, LogIndex: 0, TxHash: fmt.Sprintf("0xseed%d0", i), BlockTime: now,
				Created: &domain.OrderCreatedPayload{
					OrderID: base + 1, Maker: "0xSeedMakerA", Side: domain.OrderSideSell,
					Amount: 500, PriceTicks: 2_500_000,
				},
			},
			domain.ChainEvent{
				Kind: domain.EventOrderCreated, Contract: c.Contract, AssetID: c.AssetID,
				BlockNumber: 2, LogIndex: 0, TxHash: fmt.Sprintf("0xseed%d1", i), BlockTime: now.Add(time.Minute),
				Created: &domain.OrderCreatedPayload{
					OrderID: base + 2, Maker: "0xSeedMakerB", Side: domain.OrderSideSell,
					Amount: 250, PriceTicks: 2_600_000,
				},
			},
			domain.ChainEvent{
				Kind: domain.EventOrderFilled, Contract: c.Contract, AssetID: c.AssetID,
				BlockNumber: 3, LogIndex: 0, TxHash: fmt.Sprintf("0xseed%d2", i), BlockTime: now.Add(2 * time.Minute),
				Filled: &domain.OrderFilledPayload{
					OrderID: base + 1, Taker: "0xSeedTaker", Amount: 200, PriceTicks: 2_500_000,
				},
			},
			domain.ChainEvent{
				Kind: domain.EventOrderCancelled, Contract: c.Contract, AssetID: c.AssetID,
				BlockNumber: 4, LogIndex: 0, TxHash: fmt.Sprintf("0xseed%d3", i), BlockTime: now.Add(3 * time.Minute),
				Cancelled: &domain.OrderCancelledPayload{OrderID: base + 2},
			},
		)

		if c.TokenAddress != "" {
			src.SetBalance(c.TokenAddress, "0xSeedMakerA", 1000)
			src.SetBalance(c.TokenAddress, "0xSeedTaker", 200)
		}
	}

	a.logger.Info("seeded demo chain", slog.Int("contracts", len(contracts)))
}
