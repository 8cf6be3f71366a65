package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
	"github.com/brixmarket/syncengine/internal/store/memory"
)

const (
	testContract = "0xMarket1"
	testAsset    = "bldg-001"
	testToken    = "0xToken1"
)

func testRegistry() *domain.AssetRegistry {
	return domain.NewAssetRegistry([]domain.AssetContract{{
		AssetID:      testAsset,
		Symbol:       "BLDG1",
		Name:         "Building One",
		Contract:     testContract,
		TokenAddress: testToken,
	}})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedOrder applies a creation event so the order lands the same way the
// indexer would land it.
func seedOrder(t *testing.T, store *memory.Store, id int64, block uint64, side domain.OrderSide, amount, price int64) {
	t.Helper()
	applier := memory.NewApplier(store)
	_, err := applier.Apply(context.Background(), domain.ChainEvent{
		Kind:        domain.EventOrderCreated,
		Contract:    testContract,
		AssetID:     testAsset,
		BlockNumber: block,
		BlockHash:   "0xblock",
		TxHash:      "0xtxcreate",
		LogIndex:    uint(id),
		BlockTime:   time.Unix(1_700_000_000+int64(block)*12, 0).UTC(),
		Created: &domain.OrderCreatedPayload{
			OrderID:    id,
			Maker:      "0xmaker",
			Side:       side,
			Amount:     amount,
			PriceTicks: price,
		},
	})
	if err != nil {
		t.Fatalf("seed order %d: %v", id, err)
	}
}

type fakeBookCache struct {
	snaps       map[string]domain.BookSnapshot
	sets, hits  int
	invalidated int
}

func newFakeBookCache() *fakeBookCache {
	return &fakeBookCache{snaps: make(map[string]domain.BookSnapshot)}
}

func (c *fakeBookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	c.sets++
	c.snaps[snap.AssetID] = snap
	return nil
}

func (c *fakeBookCache) GetSnapshot(ctx context.Context, assetID string) (domain.BookSnapshot, error) {
	snap, ok := c.snaps[assetID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	c.hits++
	return snap, nil
}

func (c *fakeBookCache) Invalidate(ctx context.Context, assetID string) error {
	c.invalidated++
	delete(c.snaps, assetID)
	return nil
}

func TestSnapshotAggregatesLevels(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBookService(store.Orders(), nil, testRegistry(), discard())

	seedOrder(t, store, 1, 1, domain.OrderSideBuy, 100, 900_000)
	seedOrder(t, store, 2, 2, domain.OrderSideBuy, 50, 900_000)
	seedOrder(t, store, 3, 3, domain.OrderSideBuy, 30, 950_000)
	seedOrder(t, store, 4, 4, domain.OrderSideSell, 200, 1_000_000)
	seedOrder(t, store, 5, 5, domain.OrderSideSell, 80, 1_100_000)

	snap, err := svc.Snapshot(ctx, testAsset)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.Bids) != 2 {
		t.Fatalf("bids = %d levels, want 2", len(snap.Bids))
	}
	// Best bid first.
	if snap.Bids[0].PriceTicks != 950_000 || snap.Bids[0].Amount != 30 {
		t.Errorf("top bid = %+v, want price 950000 amount 30", snap.Bids[0])
	}
	if snap.Bids[1].Amount != 150 || snap.Bids[1].OrderCount != 2 {
		t.Errorf("second bid = %+v, want amount 150 from 2 orders", snap.Bids[1])
	}
	if len(snap.Asks) != 2 || snap.Asks[0].PriceTicks != 1_000_000 {
		t.Fatalf("asks = %+v, want best ask 1000000 first", snap.Asks)
	}

	if snap.BestBid == nil || *snap.BestBid != 950_000 {
		t.Errorf("BestBid = %v, want 950000", snap.BestBid)
	}
	if snap.BestAsk == nil || *snap.BestAsk != 1_000_000 {
		t.Errorf("BestAsk = %v, want 1000000", snap.BestAsk)
	}
	if snap.Spread == nil || *snap.Spread != 50_000 {
		t.Errorf("Spread = %v, want 50000", snap.Spread)
	}
}

func TestSnapshotEmptySides(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBookService(store.Orders(), nil, testRegistry(), discard())

	seedOrder(t, store, 1, 1, domain.OrderSideSell, 100, 1_000_000)

	snap, err := svc.Snapshot(ctx, testAsset)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.BestBid != nil {
		t.Errorf("BestBid = %v, want nil for empty side", *snap.BestBid)
	}
	if snap.Spread != nil {
		t.Errorf("Spread = %v, want nil when a side is empty", *snap.Spread)
	}
	if snap.BestAsk == nil {
		t.Error("BestAsk = nil, want best ask price")
	}
}

func TestSnapshotUnknownAsset(t *testing.T) {
	svc := NewBookService(memory.New().Orders(), nil, testRegistry(), discard())
	_, err := svc.Snapshot(context.Background(), "no-such-asset")
	if !errors.Is(err, domain.ErrUnknownAsset) {
		t.Fatalf("err = %v, want ErrUnknownAsset", err)
	}
}

func TestSnapshotUsesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cache := newFakeBookCache()
	svc := NewBookService(store.Orders(), cache, testRegistry(), discard())

	seedOrder(t, store, 1, 1, domain.OrderSideBuy, 100, 900_000)

	if _, err := svc.Snapshot(ctx, testAsset); err != nil {
		t.Fatalf("first Snapshot: %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1 after miss", cache.sets)
	}
	if _, err := svc.Snapshot(ctx, testAsset); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}

	// The indexer drops the cached snapshot after a committed change; the
	// next read must rebuild from the store, not serve the old book.
	seedOrder(t, store, 2, 2, domain.OrderSideBuy, 50, 900_000)
	if err := cache.Invalidate(ctx, testAsset); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	snap, err := svc.Snapshot(ctx, testAsset)
	if err != nil {
		t.Fatalf("third Snapshot: %v", err)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Amount != 150 {
		t.Errorf("bids = %+v, want rebuilt level of 150", snap.Bids)
	}
	if cache.sets != 2 {
		t.Errorf("cache sets = %d, want refresh after invalidation", cache.sets)
	}
}
