package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/brixmarket/syncengine/internal/candle"
	"github.com/brixmarket/syncengine/internal/domain"
)

// CandleService aggregates OHLCV candles on demand. Two series exist per
// asset: order candles over creation prices (market intent) and trade
// candles over execution prices.
type CandleService struct {
	orders domain.OrderStore
	trades domain.TradeStore
	assets *domain.AssetRegistry
	logger *slog.Logger
}

// NewCandleService creates a CandleService.
func NewCandleService(
	orders domain.OrderStore,
	trades domain.TradeStore,
	assets *domain.AssetRegistry,
	logger *slog.Logger,
) *CandleService {
	return &CandleService{
		orders: orders,
		trades: trades,
		assets: assets,
		logger: logger,
	}
}

// OrderCandles buckets an asset's order creations on the given interval.
// Buckets with no orders are omitted.
func (s *CandleService) OrderCandles(ctx context.Context, assetID, interval string, opts domain.ListOpts) ([]domain.OrderCandle, error) {
	iv, err := domain.ParseInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("candle_service: %w", err)
	}
	if _, err := s.assets.ByID(assetID); err != nil {
		return nil, fmt.Errorf("candle_service: %w", err)
	}

	orders, err := s.orders.ListByAsset(ctx, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("candle_service: list orders: %w", err)
	}
	return candle.AggregateOrders(orders, iv), nil
}

// TradeCandles buckets an asset's trade executions on the given interval.
func (s *CandleService) TradeCandles(ctx context.Context, assetID, interval string, opts domain.ListOpts) ([]domain.TradeCandle, error) {
	iv, err := domain.ParseInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("candle_service: %w", err)
	}
	if _, err := s.assets.ByID(assetID); err != nil {
		return nil, fmt.Errorf("candle_service: %w", err)
	}

	trades, err := s.trades.ListByAsset(ctx, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("candle_service: list trades: %w", err)
	}

	// Trade listings are newest-first; candles fold in chain order.
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].BlockNumber != trades[j].BlockNumber {
			return trades[i].BlockNumber < trades[j].BlockNumber
		}
		return trades[i].LogIndex < trades[j].LogIndex
	})
	return candle.AggregateTrades(trades, iv), nil
}
