package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
	"github.com/brixmarket/syncengine/internal/server/handler"
	"github.com/brixmarket/syncengine/internal/service"
	"github.com/brixmarket/syncengine/internal/store/memory"
)

const (
	testContract = "0xMarket1"
	testAsset    = "bldg-001"
	testMaker    = "0xWalletA"
	testTaker    = "0xWalletB"
)

func testRegistry(t *testing.T) *domain.AssetRegistry {
	t.Helper()
	return domain.NewAssetRegistry([]domain.AssetContract{
		{AssetID: testAsset, Symbol: "BLDG1", Name: "Building One", Contract: testContract},
	})
}

// seedMarket applies a small order lifecycle: a resting sell for 500 at
// 2.50, a fill of 200, and a second resting sell at 2.60.
func seedMarket(t *testing.T, store *memory.Store) {
	t.Helper()
	applier := memory.NewApplier(store)
	ctx := context.Background()

	events := []domain.ChainEvent{
		{
			Kind: domain.EventOrderCreated, Contract: testContract, AssetID: testAsset,
			BlockNumber: 1, LogIndex: 0, TxHash: "0xt1", BlockTime: time.Unix(1_700_000_000, 0),
			Created: &domain.OrderCreatedPayload{OrderID: 1, Maker: testMaker, Side: domain.OrderSideSell, Amount: 500, PriceTicks: 2_500_000},
		},
		{
			Kind: domain.EventOrderFilled, Contract: testContract, AssetID: testAsset,
			BlockNumber: 2, LogIndex: 0, TxHash: "0xt2", BlockTime: time.Unix(1_700_000_060, 0),
			Filled: &domain.OrderFilledPayload{OrderID: 1, Taker: testTaker, Amount: 200, PriceTicks: 2_500_000},
		},
		{
			Kind: domain.EventOrderCreated, Contract: testContract, AssetID: testAsset,
			BlockNumber: 3, LogIndex: 0, TxHash: "0xt3", BlockTime: time.Unix(1_700_000_120, 0),
			Created: &domain.OrderCreatedPayload{OrderID: 2, Maker: testMaker, Side: domain.OrderSideSell, Amount: 100, PriceTicks: 2_600_000},
		},
	}
	for _, ev := range events {
		res, err := applier.Apply(ctx, ev)
		if err != nil {
			t.Fatalf("apply %s: %v", ev.Kind, err)
		}
		if res.Outcome != domain.OutcomeApplied {
			t.Fatalf("apply %s: outcome %s", ev.Kind, res.Outcome)
		}
	}
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	seedMarket(t, store)
	registry := testRegistry(t)

	books := service.NewBookService(store.Orders(), nil, registry, logger)
	balances := service.NewBalanceService(store.Ledger(), nil, nil, registry, logger)
	candles := service.NewCandleService(store.Orders(), store.Trades(), registry, logger)
	stats := service.NewStatsService(store.Trades(), registry, logger)

	srv := NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(logger),
		Assets:    handler.NewAssetHandler(registry, stats, logger),
		Books:     handler.NewBookHandler(books, logger),
		Trades:    handler.NewTradeHandler(store.Trades(), registry, logger),
		Candles:   handler.NewCandleHandler(candles, logger),
		Wallets:   handler.NewWalletHandler(balances, store.Orders(), store.Trades(), logger),
		Incidents: handler.NewIncidentHandler(store.Incidents(), store.Audit(), logger),
		Cursors:   handler.NewCursorHandler(store.Cursors(), store.Audit(), logger),
	}, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("GET %s: decode: %v", path, err)
	}
}

func TestListAssets(t *testing.T) {
	ts := newTestServer(t, "")

	var body struct {
		Assets []struct {
			AssetID string `json:"asset_id"`
			Symbol  string `json:"symbol"`
		} `json:"assets"`
	}
	getJSON(t, ts, "/api/assets", &body)

	if len(body.Assets) != 1 {
		t.Fatalf("assets = %d, want 1", len(body.Assets))
	}
	if body.Assets[0].AssetID != testAsset || body.Assets[0].Symbol != "BLDG1" {
		t.Errorf("unexpected asset %+v", body.Assets[0])
	}
}

func TestGetBook(t *testing.T) {
	ts := newTestServer(t, "")

	var body struct {
		Asks []struct {
			Price  string `json:"price"`
			Amount int64  `json:"amount"`
		} `json:"asks"`
		Bids    []any   `json:"bids"`
		BestAsk *string `json:"best_ask"`
	}
	getJSON(t, ts, "/api/assets/"+testAsset+"/book", &body)

	if len(body.Asks) != 2 {
		t.Fatalf("asks = %d, want 2", len(body.Asks))
	}
	if body.Asks[0].Price != "2.5" || body.Asks[0].Amount != 300 {
		t.Errorf("best ask level = %+v, want price 2.5 amount 300", body.Asks[0])
	}
	if len(body.Bids) != 0 {
		t.Errorf("bids = %d, want 0", len(body.Bids))
	}
	if body.BestAsk == nil || *body.BestAsk != "2.5" {
		t.Errorf("best_ask = %v, want 2.5", body.BestAsk)
	}
}

func TestGetBookUnknownAsset(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/assets/nope/book")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListTrades(t *testing.T) {
	ts := newTestServer(t, "")

	var body struct {
		Trades []struct {
			Price  string `json:"price"`
			Amount int64  `json:"amount"`
			Buyer  string `json:"buyer"`
			Seller string `json:"seller"`
		} `json:"trades"`
	}
	getJSON(t, ts, "/api/assets/"+testAsset+"/trades", &body)

	if len(body.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(body.Trades))
	}
	tr := body.Trades[0]
	if tr.Price != "2.5" || tr.Amount != 200 || tr.Seller != testMaker || tr.Buyer != testTaker {
		t.Errorf("unexpected trade %+v", tr)
	}
}

func TestGetCandles(t *testing.T) {
	ts := newTestServer(t, "")

	var body struct {
		Series  string `json:"series"`
		Candles []struct {
			Open   string `json:"open"`
			Close  string `json:"close"`
			Volume int64  `json:"volume"`
		} `json:"candles"`
	}
	getJSON(t, ts, "/api/assets/"+testAsset+"/candles?interval=1h", &body)

	if body.Series != "trades" {
		t.Errorf("series = %q, want trades", body.Series)
	}
	if len(body.Candles) != 1 {
		t.Fatalf("candles = %d, want 1", len(body.Candles))
	}
	if body.Candles[0].Volume != 200 {
		t.Errorf("volume = %d, want 200", body.Candles[0].Volume)
	}

	resp, err := http.Get(ts.URL + "/api/assets/" + testAsset + "/candles?series=bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus series status = %d, want 400", resp.StatusCode)
	}
}

func TestWalletEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	var bal struct {
		WalletBalance int64 `json:"wallet_balance"`
		Locked        int64 `json:"locked"`
		Tradeable     int64 `json:"tradeable"`
	}
	getJSON(t, ts, "/api/wallets/"+testMaker+"/balance?asset="+testAsset, &bal)
	// Order 1 locked 500, the fill consumed 200, order 2 locked 100.
	if bal.Locked != 400 {
		t.Errorf("locked = %d, want 400", bal.Locked)
	}

	var orders struct {
		Orders []struct {
			OrderID   int64  `json:"order_id"`
			Status    string `json:"status"`
			Remaining int64  `json:"remaining"`
		} `json:"orders"`
	}
	getJSON(t, ts, "/api/wallets/"+testMaker+"/orders", &orders)
	if len(orders.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders.Orders))
	}

	var ledger struct {
		Entries []struct {
			Source string `json:"source"`
			Amount int64  `json:"amount"`
		} `json:"entries"`
	}
	getJSON(t, ts, "/api/wallets/"+testMaker+"/ledger?asset="+testAsset, &ledger)
	if len(ledger.Entries) == 0 {
		t.Fatal("no ledger entries for maker")
	}

	var trades struct {
		Trades []any `json:"trades"`
	}
	getJSON(t, ts, "/api/wallets/"+testTaker+"/trades", &trades)
	if len(trades.Trades) != 1 {
		t.Errorf("taker trades = %d, want 1", len(trades.Trades))
	}
}

func TestGetBalanceRequiresAsset(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/wallets/" + testMaker + "/balance")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCursorResetRoundTrip(t *testing.T) {
	ts := newTestServer(t, "")

	body := strings.NewReader(`{"block_number": 42, "log_index": 3}`)
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/cursors/"+testContract, body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", resp.StatusCode)
	}

	var list struct {
		Cursors []struct {
			Contract    string `json:"contract"`
			BlockNumber uint64 `json:"block_number"`
			BlockHash   string `json:"block_hash"`
		} `json:"cursors"`
	}
	getJSON(t, ts, "/api/cursors", &list)

	found := false
	for _, c := range list.Cursors {
		if c.Contract == testContract {
			found = true
			if c.BlockNumber != 42 {
				t.Errorf("block_number = %d, want 42", c.BlockNumber)
			}
			if c.BlockHash != "" {
				t.Errorf("block_hash = %q, want empty after operator reset", c.BlockHash)
			}
		}
	}
	if !found {
		t.Fatalf("contract %s not in cursor list", testContract)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/api/assets")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key status = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/assets", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with key status = %d, want 200", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Get(fmt.Sprintf("%s/api/assets/%s/stats", ts.URL, testAsset))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var stats struct {
		LastPrice  string `json:"last_price"`
		TradeCount int64  `json:"trade_count_24h"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	// The seeded trade is older than the trailing window, so the stats
	// reflect an empty window.
	if stats.TradeCount != 0 {
		t.Errorf("trade_count = %d, want 0", stats.TradeCount)
	}
}
