package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// StatsService computes trailing 24-hour market statistics.
type StatsService struct {
	trades domain.TradeStore
	assets *domain.AssetRegistry
	logger *slog.Logger

	now func() time.Time // injectable for tests
}

// NewStatsService creates a StatsService.
func NewStatsService(trades domain.TradeStore, assets *domain.AssetRegistry, logger *slog.Logger) *StatsService {
	return &StatsService{
		trades: trades,
		assets: assets,
		logger: logger,
		now:    time.Now,
	}
}

// Stats summarizes an asset's trade activity over the trailing 24 hours.
// An asset with no trades at all yields zero-valued stats.
func (s *StatsService) Stats(ctx context.Context, assetID string) (domain.MarketStats, error) {
	if _, err := s.assets.ByID(assetID); err != nil {
		return domain.MarketStats{}, fmt.Errorf("stats_service: %w", err)
	}

	now := s.now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	window, err := s.trades.ListSince(ctx, assetID, cutoff)
	if err != nil {
		return domain.MarketStats{}, fmt.Errorf("stats_service: list window: %w", err)
	}

	// The reference price for the 24h change is the last execution before
	// the window opened.
	var refPrice int64
	prior, err := s.trades.LastBefore(ctx, assetID, cutoff)
	switch {
	case err == nil:
		refPrice = prior.PriceTicks
	case errors.Is(err, domain.ErrNotFound):
		// No trading history before the window.
	default:
		return domain.MarketStats{}, fmt.Errorf("stats_service: last before window: %w", err)
	}

	stats := domain.MarketStats{
		AssetID:   assetID,
		LastPrice: refPrice,
		AsOf:      now,
	}
	for i, t := range window {
		if i == 0 || t.PriceTicks > stats.High24h {
			stats.High24h = t.PriceTicks
		}
		if i == 0 || t.PriceTicks < stats.Low24h {
			stats.Low24h = t.PriceTicks
		}
		stats.Volume24h += t.Amount
		stats.Value24h += t.TotalValue
		stats.TradeCount24h++
		stats.LastPrice = t.PriceTicks
	}
	if refPrice != 0 && stats.LastPrice != 0 {
		stats.Change24h = stats.LastPrice - refPrice
	}
	return stats, nil
}
