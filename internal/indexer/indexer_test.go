package indexer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brixmarket/syncengine/internal/chain/mock"
	"github.com/brixmarket/syncengine/internal/domain"
	"github.com/brixmarket/syncengine/internal/store/memory"
)

const (
	testContract = "0xMarket1"
	testAsset    = "bldg-001"
)

var testContracts = []domain.AssetContract{{
	AssetID:  testAsset,
	Symbol:   "BLDG1",
	Name:     "Building One",
	Contract: testContract,
}}

type captureBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func newCaptureBus() *captureBus {
	return &captureBus{msgs: make(map[string][][]byte)}
}

func (b *captureBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Signal, error) {
	return nil, nil
}

func (b *captureBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs[channel])
}

type fakeBookCache struct {
	mu    sync.Mutex
	snaps map[string]domain.BookSnapshot
}

func newFakeBookCache() *fakeBookCache {
	return &fakeBookCache{snaps: make(map[string]domain.BookSnapshot)}
}

func (c *fakeBookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AssetID] = snap
	return nil
}

func (c *fakeBookCache) GetSnapshot(ctx context.Context, assetID string) (domain.BookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[assetID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakeBookCache) Invalidate(ctx context.Context, assetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, assetID)
	return nil
}

func (c *fakeBookCache) has(assetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.snaps[assetID]
	return ok
}

type captureAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *captureAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *captureAlerter) got() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createdEvent(id int64, block uint64, logIdx uint, side domain.OrderSide, amount, price int64) domain.ChainEvent {
	return domain.ChainEvent{
		Kind:        domain.EventOrderCreated,
		Contract:    testContract,
		AssetID:     testAsset,
		BlockNumber: block,
		LogIndex:    logIdx,
		TxHash:      txHash(block, logIdx),
		BlockTime:   blockTime(block),
		Created: &domain.OrderCreatedPayload{
			OrderID:    id,
			Maker:      "0xmaker",
			Side:       side,
			Amount:     amount,
			PriceTicks: price,
		},
	}
}

func filledEvent(id int64, block uint64, logIdx uint, amount, price int64) domain.ChainEvent {
	return domain.ChainEvent{
		Kind:        domain.EventOrderFilled,
		Contract:    testContract,
		AssetID:     testAsset,
		BlockNumber: block,
		LogIndex:    logIdx,
		TxHash:      txHash(block, logIdx),
		BlockTime:   blockTime(block),
		Filled: &domain.OrderFilledPayload{
			OrderID:    id,
			Taker:      "0xtaker",
			Amount:     amount,
			PriceTicks: price,
		},
	}
}

func cancelledEvent(id int64, block uint64, logIdx uint) domain.ChainEvent {
	return domain.ChainEvent{
		Kind:        domain.EventOrderCancelled,
		Contract:    testContract,
		AssetID:     testAsset,
		BlockNumber: block,
		LogIndex:    logIdx,
		TxHash:      txHash(block, logIdx),
		BlockTime:   blockTime(block),
		Cancelled:   &domain.OrderCancelledPayload{OrderID: id},
	}
}

func txHash(block uint64, logIdx uint) string {
	return "0xtx" + string(rune('a'+block)) + string(rune('a'+logIdx))
}

func blockTime(block uint64) time.Time {
	return time.Unix(1_700_000_000+int64(block)*12, 0).UTC()
}

func newTestIndexer(t *testing.T, src *mock.Source, store *memory.Store, opts ...Option) *Indexer {
	t.Helper()
	ix, err := New(src, memory.NewApplier(store), store.Cursors(), testContracts,
		Config{PollInterval: time.Minute, TickTimeout: 5 * time.Second}, discard(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix
}

func TestTickAppliesLifecycle(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	bus := newCaptureBus()
	ix := newTestIndexer(t, src, store, WithSignalBus(bus))

	src.Append(
		createdEvent(1, 1, 0, domain.OrderSideSell, 500, 1_000_000),
		filledEvent(1, 2, 0, 200, 1_000_000),
		cancelledEvent(1, 3, 0),
	)

	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	o, err := store.Orders().Get(ctx, testContract, 1)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if o.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want %s", o.Status, domain.OrderStatusCancelled)
	}
	if o.RemainingAmount != 300 {
		t.Errorf("remaining = %d, want 300", o.RemainingAmount)
	}

	trades, err := store.Trades().ListByAsset(ctx, testAsset, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByAsset: %v", err)
	}
	if len(trades) != 1 || trades[0].Amount != 200 {
		t.Fatalf("trades = %+v, want one trade of 200", trades)
	}

	cur, err := store.Cursors().Get(ctx, testContract)
	if err != nil {
		t.Fatalf("Get cursor: %v", err)
	}
	if cur.Position.BlockNumber != 3 {
		t.Errorf("cursor block = %d, want 3", cur.Position.BlockNumber)
	}
	if cur.BlockHash == "" {
		t.Error("cursor block hash not recorded")
	}

	if got := bus.count(domain.BookChannel(testAsset)); got != 3 {
		t.Errorf("published %d book changes, want 3", got)
	}
}

func TestTickDropsCachedBookOnCommit(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	cache := newFakeBookCache()
	ix := newTestIndexer(t, src, store, WithBookCache(cache))

	src.Append(createdEvent(1, 1, 0, domain.OrderSideSell, 500, 1_000_000))
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// A reader renders and caches the post-create book.
	err := cache.SetSnapshot(ctx, domain.BookSnapshot{
		AssetID: testAsset,
		Asks:    []domain.BookLevel{{PriceTicks: 1_000_000, Amount: 500, OrderCount: 1}},
	})
	if err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}

	src.Append(filledEvent(1, 2, 0, 300, 1_000_000))
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if cache.has(testAsset) {
		t.Error("cached snapshot survived a committed fill; readers would see ask 500 while the store holds 200")
	}
}

func TestTickReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	bus := newCaptureBus()
	ix := newTestIndexer(t, src, store, WithSignalBus(bus))

	src.Append(
		createdEvent(1, 1, 0, domain.OrderSideBuy, 100, 2_000_000),
		filledEvent(1, 2, 0, 100, 2_000_000),
	)
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	// An operator rewinding the cursor replays the whole stream.
	if err := store.Cursors().Put(ctx, domain.EventCursor{Contract: testContract}); err != nil {
		t.Fatalf("Put cursor: %v", err)
	}
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("replay Tick: %v", err)
	}

	trades, err := store.Trades().ListByAsset(ctx, testAsset, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByAsset: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1 after replay", len(trades))
	}

	o, err := store.Orders().Get(ctx, testContract, 1)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if o.Status != domain.OrderStatusFilled || o.RemainingAmount != 0 {
		t.Errorf("order = %s/%d, want filled/0", o.Status, o.RemainingAmount)
	}

	// Replayed duplicates do not re-publish.
	if got := bus.count(domain.BookChannel(testAsset)); got != 2 {
		t.Errorf("published %d book changes, want 2", got)
	}
}

func TestTickDefersFillUntilOrderArrives(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	ix := newTestIndexer(t, src, store)

	src.Append(filledEvent(7, 5, 0, 50, 1_000_000))
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if _, err := store.Cursors().Get(ctx, testContract); err == nil {
		t.Fatal("cursor advanced past a deferred fill")
	}

	src.Append(createdEvent(7, 3, 0, domain.OrderSideSell, 50, 1_000_000))
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	o, err := store.Orders().Get(ctx, testContract, 7)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if o.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want %s", o.Status, domain.OrderStatusFilled)
	}
}

func TestTickQuarantinesOverfillAndAlerts(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	alerter := &captureAlerter{}
	ix := newTestIndexer(t, src, store, WithAlerter(alerter), WithAudit(store.Audit()))

	src.Append(
		createdEvent(1, 1, 0, domain.OrderSideSell, 100, 1_000_000),
		filledEvent(1, 2, 0, 150, 1_000_000),
		createdEvent(2, 3, 0, domain.OrderSideBuy, 10, 1_000_000),
	)
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	o, err := store.Orders().Get(ctx, testContract, 1)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !o.NeedsReconciliation {
		t.Error("overfilled order not flagged for reconciliation")
	}

	// The bad fill is consumed, not retried: later events still land.
	if _, err := store.Orders().Get(ctx, testContract, 2); err != nil {
		t.Errorf("order after quarantined event not applied: %v", err)
	}

	incidents, err := store.Incidents().ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(incidents) != 1 || incidents[0].Kind != domain.IncidentIntegrity {
		t.Fatalf("incidents = %+v, want one integrity incident", incidents)
	}

	if got := alerter.got(); len(got) != 1 || got[0] != "quarantine" {
		t.Errorf("alerts = %v, want [quarantine]", got)
	}
}

func TestTickHaltsOnReorg(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	alerter := &captureAlerter{}
	ix := newTestIndexer(t, src, store, WithAlerter(alerter))

	src.Append(
		createdEvent(1, 1, 0, domain.OrderSideSell, 100, 1_000_000),
		createdEvent(2, 4, 0, domain.OrderSideSell, 100, 1_000_000),
	)
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	src.Reorg(4)
	for i := 0; i < 2; i++ {
		if err := ix.Tick(ctx, testContracts[0]); err != nil {
			t.Fatalf("Tick after reorg: %v", err)
		}
	}

	// One incident and one alert, no matter how many halted ticks run.
	incidents, err := store.Incidents().ListOpen(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(incidents) != 1 || incidents[0].Kind != domain.IncidentReorg {
		t.Fatalf("incidents = %+v, want one reorg incident", incidents)
	}
	if got := alerter.got(); len(got) != 1 || got[0] != "reorg" {
		t.Errorf("alerts = %v, want [reorg]", got)
	}

	// Orders from reorged blocks are flagged; earlier ones are not.
	o2, err := store.Orders().Get(ctx, testContract, 2)
	if err != nil {
		t.Fatalf("Get order 2: %v", err)
	}
	if !o2.NeedsReconciliation {
		t.Error("order from reorged block not flagged")
	}
	o1, err := store.Orders().Get(ctx, testContract, 1)
	if err != nil {
		t.Fatalf("Get order 1: %v", err)
	}
	if o1.NeedsReconciliation {
		t.Error("order below reorg point flagged")
	}

	// The cursor stays where it was until an operator resets it.
	cur, err := store.Cursors().Get(ctx, testContract)
	if err != nil {
		t.Fatalf("Get cursor: %v", err)
	}
	if cur.Position.BlockNumber != 4 {
		t.Errorf("cursor block = %d, want 4", cur.Position.BlockNumber)
	}

	// Operator reset below the reorg point resumes indexing.
	if err := store.Cursors().Put(ctx, domain.EventCursor{Contract: testContract}); err != nil {
		t.Fatalf("Put cursor: %v", err)
	}
	src.Append(createdEvent(3, 6, 0, domain.OrderSideBuy, 10, 1_000_000))
	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick after reset: %v", err)
	}
	if _, err := store.Orders().Get(ctx, testContract, 3); err != nil {
		t.Errorf("order after cursor reset not applied: %v", err)
	}
}

func TestTickRespectsBatchCap(t *testing.T) {
	ctx := context.Background()
	src := mock.New()
	store := memory.New()
	ix, err := New(src, memory.NewApplier(store), store.Cursors(), testContracts,
		Config{PollInterval: time.Minute, TickTimeout: 5 * time.Second, BatchBlocks: 2}, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := int64(1); i <= 5; i++ {
		src.Append(createdEvent(i, uint64(i), 0, domain.OrderSideBuy, 10, 1_000_000))
	}

	if err := ix.Tick(ctx, testContracts[0]); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	cur, err := store.Cursors().Get(ctx, testContract)
	if err != nil {
		t.Fatalf("Get cursor: %v", err)
	}
	if cur.Position.BlockNumber != 2 {
		t.Errorf("cursor block = %d, want 2 after capped tick", cur.Position.BlockNumber)
	}

	// The loop catches up over subsequent ticks.
	for i := 0; i < 2; i++ {
		if err := ix.Tick(ctx, testContracts[0]); err != nil {
			t.Fatalf("catch-up Tick: %v", err)
		}
	}
	cur, err = store.Cursors().Get(ctx, testContract)
	if err != nil {
		t.Fatalf("Get cursor: %v", err)
	}
	if cur.Position.BlockNumber != 5 {
		t.Errorf("cursor block = %d, want 5 after catch-up", cur.Position.BlockNumber)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := mock.New()
	store := memory.New()
	ix := newTestIndexer(t, src, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
