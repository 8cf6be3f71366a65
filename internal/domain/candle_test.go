package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("5m")
	if err != nil {
		t.Fatalf("parse 5m: %v", err)
	}
	if iv.Ms != 300_000 {
		t.Fatalf("5m width %d, want 300000", iv.Ms)
	}

	if _, err := ParseInterval("7m"); !errors.Is(err, ErrBadInterval) {
		t.Fatalf("parse 7m: got %v, want ErrBadInterval", err)
	}
}

func TestBucketStart(t *testing.T) {
	iv, _ := ParseInterval("1m")
	ts := time.UnixMilli(90_500) // mid second minute
	if got := iv.BucketStart(ts); got != 60_000 {
		t.Fatalf("bucket start %d, want 60000", got)
	}
	// Exact boundary belongs to its own bucket.
	if got := iv.BucketStart(time.UnixMilli(120_000)); got != 120_000 {
		t.Fatalf("boundary bucket start %d, want 120000", got)
	}
}

func TestChainEventValidate(t *testing.T) {
	base := ChainEvent{
		Contract:    "0xmarket",
		AssetID:     "asset-1",
		BlockNumber: 10,
		LogIndex:    0,
		TxHash:      "0xabc",
		BlockTime:   time.Unix(1000, 0),
	}

	tests := []struct {
		name    string
		mutate  func(*ChainEvent)
		wantErr bool
	}{
		{"valid create", func(e *ChainEvent) {
			e.Kind = EventOrderCreated
			e.Created = &OrderCreatedPayload{OrderID: 1, Maker: "0xm", Side: OrderSideSell, Amount: 10, PriceTicks: 5}
		}, false},
		{"valid fill", func(e *ChainEvent) {
			e.Kind = EventOrderFilled
			e.Filled = &OrderFilledPayload{OrderID: 1, Taker: "0xt", Amount: 10, PriceTicks: 5}
		}, false},
		{"valid cancel", func(e *ChainEvent) {
			e.Kind = EventOrderCancelled
			e.Cancelled = &OrderCancelledPayload{OrderID: 1}
		}, false},
		{"unknown kind", func(e *ChainEvent) {
			e.Kind = EventKind("order_amended")
		}, true},
		{"payload kind mismatch", func(e *ChainEvent) {
			e.Kind = EventOrderCreated
			e.Filled = &OrderFilledPayload{OrderID: 1, Amount: 10, PriceTicks: 5}
		}, true},
		{"bad side", func(e *ChainEvent) {
			e.Kind = EventOrderCreated
			e.Created = &OrderCreatedPayload{OrderID: 1, Side: OrderSide("hold"), Amount: 10, PriceTicks: 5}
		}, true},
		{"missing tx hash", func(e *ChainEvent) {
			e.Kind = EventOrderCancelled
			e.Cancelled = &OrderCancelledPayload{OrderID: 1}
			e.TxHash = ""
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			tt.mutate(&ev)
			err := ev.Validate()
			if tt.wantErr && !errors.Is(err, ErrUnknownEvent) {
				t.Fatalf("got %v, want ErrUnknownEvent", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCursorBefore(t *testing.T) {
	a := Cursor{BlockNumber: 5, LogIndex: 3}
	b := Cursor{BlockNumber: 5, LogIndex: 4}
	c := Cursor{BlockNumber: 6, LogIndex: 0}

	if !a.Before(b) || !b.Before(c) || b.Before(a) || a.Before(a) {
		t.Fatal("cursor ordering broken")
	}
}
