// Package handler contains the HTTP handlers for the query-service API.
// Handlers declare the narrow service interfaces they need so the package
// does not depend on concrete service implementations.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// StatsService supplies trailing 24-hour market statistics.
type StatsService interface {
	Stats(ctx context.Context, assetID string) (domain.MarketStats, error)
}

// AssetHandler serves the tracked-asset endpoints.
type AssetHandler struct {
	assets *domain.AssetRegistry
	stats  StatsService
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets *domain.AssetRegistry, stats StatsService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		stats:  stats,
		logger: logger,
	}
}

type assetDTO struct {
	AssetID      string `json:"asset_id"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Contract     string `json:"contract"`
	TokenAddress string `json:"token_address"`
}

type statsDTO struct {
	AssetID       string `json:"asset_id"`
	LastPrice     string `json:"last_price"`
	Change24h     string `json:"change_24h"`
	High24h       string `json:"high_24h"`
	Low24h        string `json:"low_24h"`
	Volume24h     int64  `json:"volume_24h"`
	Value24h      string `json:"value_24h"`
	TradeCount24h int64  `json:"trade_count_24h"`
	AsOf          string `json:"as_of"`
}

func toStatsDTO(s domain.MarketStats) statsDTO {
	return statsDTO{
		AssetID:       s.AssetID,
		LastPrice:     priceString(s.LastPrice),
		Change24h:     priceString(s.Change24h),
		High24h:       priceString(s.High24h),
		Low24h:        priceString(s.Low24h),
		Volume24h:     s.Volume24h,
		Value24h:      priceString(s.Value24h),
		TradeCount24h: s.TradeCount24h,
		AsOf:          s.AsOf.Format(time.RFC3339),
	}
}

// ListAssets returns every tracked asset.
// GET /api/assets
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := h.assets.List()
	out := make([]assetDTO, len(assets))
	for i, a := range assets {
		out[i] = assetDTO{
			AssetID:      a.AssetID,
			Symbol:       a.Symbol,
			Name:         a.Name,
			Contract:     a.Contract,
			TokenAddress: a.TokenAddress,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

// GetStats returns an asset's trailing 24-hour statistics.
// GET /api/assets/{id}/stats
func (h *AssetHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	stats, err := h.stats.Stats(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}
