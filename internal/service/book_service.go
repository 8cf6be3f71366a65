// Package service exposes the read-side projections of the synchronized
// store: orderbooks, balances, candles, stats and incident views.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// BookService renders aggregated orderbook snapshots.
type BookService struct {
	orders domain.OrderStore
	cache  domain.BookCache // optional
	assets *domain.AssetRegistry
	logger *slog.Logger
}

// NewBookService creates a BookService. cache may be nil, in which case
// every snapshot is computed from the store.
func NewBookService(
	orders domain.OrderStore,
	cache domain.BookCache,
	assets *domain.AssetRegistry,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		orders: orders,
		cache:  cache,
		assets: assets,
		logger: logger,
	}
}

// Snapshot returns the current orderbook for an asset, checking the cache
// first and falling back to an aggregation over open orders.
func (s *BookService) Snapshot(ctx context.Context, assetID string) (domain.BookSnapshot, error) {
	if _, err := s.assets.ByID(assetID); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("book_service: %w", err)
	}

	if s.cache != nil {
		snap, err := s.cache.GetSnapshot(ctx, assetID)
		if err == nil {
			return snap, nil
		}
	}

	// Cache miss or error -- rebuild from the store.
	return s.Rebuild(ctx, assetID)
}

// Rebuild recomputes an asset's snapshot from open orders and refreshes the
// cache. The indexer drops the cached snapshot after every committed
// change, so the next read lands here.
func (s *BookService) Rebuild(ctx context.Context, assetID string) (domain.BookSnapshot, error) {
	orders, err := s.orders.ListOpenByAsset(ctx, assetID)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("book_service: list open orders: %w", err)
	}

	snap := buildSnapshot(assetID, orders)

	if s.cache != nil {
		if cacheErr := s.cache.SetSnapshot(ctx, snap); cacheErr != nil {
			s.logger.WarnContext(ctx, "book_service: cache set failed",
				slog.String("asset_id", assetID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return snap, nil
}

// buildSnapshot aggregates open orders into price levels. Each side is one
// level per distinct price, best price first.
func buildSnapshot(assetID string, orders []domain.Order) domain.BookSnapshot {
	bidLevels := make(map[int64]*domain.BookLevel)
	askLevels := make(map[int64]*domain.BookLevel)
	for _, o := range orders {
		levels := bidLevels
		if o.Side == domain.OrderSideSell {
			levels = askLevels
		}
		lvl, ok := levels[o.PriceTicks]
		if !ok {
			lvl = &domain.BookLevel{PriceTicks: o.PriceTicks}
			levels[o.PriceTicks] = lvl
		}
		lvl.Amount += o.RemainingAmount
		lvl.OrderCount++
	}

	snap := domain.BookSnapshot{
		AssetID:   assetID,
		Bids:      flattenLevels(bidLevels, true),
		Asks:      flattenLevels(askLevels, false),
		Timestamp: time.Now().UTC(),
	}
	if len(snap.Bids) > 0 {
		best := snap.Bids[0].PriceTicks
		snap.BestBid = &best
	}
	if len(snap.Asks) > 0 {
		best := snap.Asks[0].PriceTicks
		snap.BestAsk = &best
	}
	if snap.BestBid != nil && snap.BestAsk != nil {
		spread := *snap.BestAsk - *snap.BestBid
		snap.Spread = &spread
	}
	return snap
}

func flattenLevels(levels map[int64]*domain.BookLevel, descending bool) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, *lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].PriceTicks > out[j].PriceTicks
		}
		return out[i].PriceTicks < out[j].PriceTicks
	})
	return out
}
