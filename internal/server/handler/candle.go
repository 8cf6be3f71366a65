package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/brixmarket/syncengine/internal/domain"
)

// CandleService supplies OHLCV aggregation for both candle series.
type CandleService interface {
	OrderCandles(ctx context.Context, assetID, interval string, opts domain.ListOpts) ([]domain.OrderCandle, error)
	TradeCandles(ctx context.Context, assetID, interval string, opts domain.ListOpts) ([]domain.TradeCandle, error)
}

// CandleHandler serves the candle endpoint.
type CandleHandler struct {
	candles CandleService
	logger  *slog.Logger
}

// NewCandleHandler creates a CandleHandler.
func NewCandleHandler(candles CandleService, logger *slog.Logger) *CandleHandler {
	return &CandleHandler{candles: candles, logger: logger}
}

type orderCandleDTO struct {
	BucketStart int64  `json:"bucket_start"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	Volume      int64  `json:"volume"`
	BuyCount    int    `json:"buy_count"`
	SellCount   int    `json:"sell_count"`
}

type tradeCandleDTO struct {
	BucketStart int64  `json:"bucket_start"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	Volume      int64  `json:"volume"`
	TotalValue  string `json:"total_value"`
	TradeCount  int    `json:"trade_count"`
}

// GetCandles returns an asset's OHLCV series on the requested interval.
// series=orders charts creation prices (market intent); series=trades
// (the default) charts execution prices.
// GET /api/assets/{id}/candles?interval=1h&series=trades&from=...&to=...
func (h *CandleHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1h"
	}
	series := r.URL.Query().Get("series")
	opts := parseListOpts(r)
	// Candles aggregate the full requested range.
	opts.Limit = 0
	opts.Offset = 0

	switch series {
	case "", "trades":
		candles, err := h.candles.TradeCandles(r.Context(), id, interval, opts)
		if err != nil {
			writeDomainError(w, r, h.logger, "get candles", err)
			return
		}
		out := make([]tradeCandleDTO, len(candles))
		for i, c := range candles {
			out[i] = tradeCandleDTO{
				BucketStart: c.BucketStart,
				Open:        priceString(c.Open),
				High:        priceString(c.High),
				Low:         priceString(c.Low),
				Close:       priceString(c.Close),
				Volume:      c.Volume,
				TotalValue:  priceString(c.TotalValue),
				TradeCount:  c.TradeCount,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"asset_id": id,
			"interval": interval,
			"series":   "trades",
			"candles":  out,
		})

	case "orders":
		candles, err := h.candles.OrderCandles(r.Context(), id, interval, opts)
		if err != nil {
			writeDomainError(w, r, h.logger, "get candles", err)
			return
		}
		out := make([]orderCandleDTO, len(candles))
		for i, c := range candles {
			out[i] = orderCandleDTO{
				BucketStart: c.BucketStart,
				Open:        priceString(c.Open),
				High:        priceString(c.High),
				Low:         priceString(c.Low),
				Close:       priceString(c.Close),
				Volume:      c.Volume,
				BuyCount:    c.BuyCount,
				SellCount:   c.SellCount,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"asset_id": id,
			"interval": interval,
			"series":   "orders",
			"candles":  out,
		})

	default:
		writeError(w, http.StatusBadRequest, "series must be \"orders\" or \"trades\"")
	}
}
