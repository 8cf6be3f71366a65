package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// BookService supplies aggregated orderbook snapshots.
type BookService interface {
	Snapshot(ctx context.Context, assetID string) (domain.BookSnapshot, error)
}

// BookHandler serves the orderbook endpoint.
type BookHandler struct {
	books  BookService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, logger: logger}
}

type bookLevelDTO struct {
	Price      string `json:"price"`
	PriceTicks int64  `json:"price_ticks"`
	Amount     int64  `json:"amount"`
	OrderCount int    `json:"order_count"`
}

type bookDTO struct {
	AssetID   string         `json:"asset_id"`
	Bids      []bookLevelDTO `json:"bids"`
	Asks      []bookLevelDTO `json:"asks"`
	BestBid   *string        `json:"best_bid"`
	BestAsk   *string        `json:"best_ask"`
	Spread    *string        `json:"spread"`
	Timestamp string         `json:"timestamp"`
}

func toBookDTO(snap domain.BookSnapshot) bookDTO {
	return bookDTO{
		AssetID:   snap.AssetID,
		Bids:      toLevelDTOs(snap.Bids),
		Asks:      toLevelDTOs(snap.Asks),
		BestBid:   priceStringPtr(snap.BestBid),
		BestAsk:   priceStringPtr(snap.BestAsk),
		Spread:    priceStringPtr(snap.Spread),
		Timestamp: snap.Timestamp.Format(time.RFC3339),
	}
}

func toLevelDTOs(levels []domain.BookLevel) []bookLevelDTO {
	out := make([]bookLevelDTO, len(levels))
	for i, lvl := range levels {
		out[i] = bookLevelDTO{
			Price:      priceString(lvl.PriceTicks),
			PriceTicks: lvl.PriceTicks,
			Amount:     lvl.Amount,
			OrderCount: lvl.OrderCount,
		}
	}
	return out
}

// GetBook returns the aggregated orderbook for an asset.
// GET /api/assets/{id}/book
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	snap, err := h.books.Snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get book", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(snap))
}
