package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// TradeHandler serves trade history endpoints.
type TradeHandler struct {
	trades domain.TradeStore
	assets *domain.AssetRegistry
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades domain.TradeStore, assets *domain.AssetRegistry, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		assets: assets,
		logger: logger,
	}
}

type tradeDTO struct {
	TxHash      string `json:"tx_hash"`
	LogIndex    uint   `json:"log_index"`
	OrderID     int64  `json:"order_id"`
	AssetID     string `json:"asset_id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Amount      int64  `json:"amount"`
	Price       string `json:"price"`
	PriceTicks  int64  `json:"price_ticks"`
	TotalValue  string `json:"total_value"`
	BlockNumber uint64 `json:"block_number"`
	BlockTime   string `json:"block_time"`
}

func toTradeDTOs(trades []domain.Trade) []tradeDTO {
	out := make([]tradeDTO, len(trades))
	for i, t := range trades {
		out[i] = tradeDTO{
			TxHash:      t.TxHash,
			LogIndex:    t.LogIndex,
			OrderID:     t.OrderID,
			AssetID:     t.AssetID,
			Buyer:       t.Buyer,
			Seller:      t.Seller,
			Amount:      t.Amount,
			Price:       priceString(t.PriceTicks),
			PriceTicks:  t.PriceTicks,
			TotalValue:  priceString(t.TotalValue),
			BlockNumber: t.BlockNumber,
			BlockTime:   t.BlockTime.Format(time.RFC3339),
		}
	}
	return out
}

// ListByAsset returns an asset's trades, newest first.
// GET /api/assets/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListByAsset(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if _, err := h.assets.ByID(id); err != nil {
		writeDomainError(w, r, h.logger, "list trades", err)
		return
	}
	opts := parseListOpts(r)

	trades, err := h.trades.ListByAsset(r.Context(), id, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list trades", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": toTradeDTOs(trades),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
