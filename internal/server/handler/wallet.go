package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// BalanceService resolves wallet balances and ledger history.
type BalanceService interface {
	Balance(ctx context.Context, wallet, assetID string) (domain.Balance, error)
	History(ctx context.Context, wallet, assetID string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
}

// WalletHandler serves per-wallet endpoints.
type WalletHandler struct {
	balances BalanceService
	orders   domain.OrderStore
	trades   domain.TradeStore
	logger   *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(balances BalanceService, orders domain.OrderStore, trades domain.TradeStore, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{balances: balances, orders: orders, trades: trades, logger: logger}
}

type balanceDTO struct {
	WalletAddress string `json:"wallet_address"`
	AssetID       string `json:"asset_id"`
	WalletBalance int64  `json:"wallet_balance"`
	Locked        int64  `json:"locked"`
	Tradeable     int64  `json:"tradeable"`
	Portfolio     int64  `json:"portfolio"`
}

type orderDTO struct {
	OrderID     int64  `json:"order_id"`
	AssetID     string `json:"asset_id"`
	Maker       string `json:"maker"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	PriceTicks  int64  `json:"price_ticks"`
	Amount      int64  `json:"amount"`
	Remaining   int64  `json:"remaining"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	CreatedAt   string `json:"created_at"`
}

type ledgerEntryDTO struct {
	AssetID   string `json:"asset_id"`
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	OrderID   int64  `json:"order_id,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	CreatedAt string `json:"created_at"`
}

// GetBalance returns a wallet's balance for one asset.
// GET /api/wallets/{address}/balance?asset={id}
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	assetID := r.URL.Query().Get("asset")
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "asset query parameter is required")
		return
	}

	bal, err := h.balances.Balance(r.Context(), address, assetID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, balanceDTO{
		WalletAddress: bal.WalletAddress,
		AssetID:       bal.AssetID,
		WalletBalance: bal.WalletBalance,
		Locked:        bal.Locked,
		Tradeable:     bal.Tradeable,
		Portfolio:     bal.Portfolio,
	})
}

// ListOrders returns orders placed by a wallet, newest first.
// GET /api/wallets/{address}/orders
func (h *WalletHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	opts := parseListOpts(r)

	orders, err := h.orders.ListByMaker(r.Context(), address, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list orders", err)
		return
	}

	out := make([]orderDTO, len(orders))
	for i, o := range orders {
		out[i] = orderDTO{
			OrderID:     o.OrderID,
			AssetID:     o.AssetID,
			Maker:       o.Maker,
			Side:        string(o.Side),
			Price:       priceString(o.PriceTicks),
			PriceTicks:  o.PriceTicks,
			Amount:      o.InitialAmount,
			Remaining:   o.RemainingAmount,
			Status:      string(o.Status),
			BlockNumber: o.BlockNumber,
			TxHash:      o.TxHash,
			CreatedAt:   o.BlockTime.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": out,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// ListTrades returns fills where the wallet was maker or taker.
// GET /api/wallets/{address}/trades
func (h *WalletHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	opts := parseListOpts(r)

	trades, err := h.trades.ListByWallet(r.Context(), address, opts)
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

// ListLedger returns a wallet's ledger entries, newest first.
// GET /api/wallets/{address}/ledger?asset={id}
func (h *WalletHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	assetID := r.URL.Query().Get("asset")
	opts := parseListOpts(r)

	entries, err := h.balances.History(r.Context(), address, assetID, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list ledger", err)
		return
	}

	out := make([]ledgerEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = ledgerEntryDTO{
			AssetID:   e.AssetID,
			Source:    string(e.Source),
			Amount:    e.Amount,
			OrderID:   e.OrderID,
			TxHash:    e.TxHash,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
