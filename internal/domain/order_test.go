package domain

import (
	"errors"
	"testing"
)

func newSellOrder(amount int64) *Order {
	return &Order{
		Contract:        "0xmarket",
		OrderID:         1,
		AssetID:         "asset-1",
		Maker:           "0xmaker",
		Side:            OrderSideSell,
		InitialAmount:   amount,
		RemainingAmount: amount,
		PriceTicks:      1_500_000,
		Status:          OrderStatusOpen,
	}
}

func TestApplyFillLifecycle(t *testing.T) {
	o := newSellOrder(500)

	if err := o.ApplyFill(300); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if o.Status != OrderStatusPartial || o.RemainingAmount != 200 {
		t.Fatalf("after partial fill got status=%s remaining=%d", o.Status, o.RemainingAmount)
	}
	if err := o.CheckInvariants(); err != nil {
		t.Fatalf("invariants after partial fill: %v", err)
	}

	if err := o.ApplyFill(200); err != nil {
		t.Fatalf("closing fill: %v", err)
	}
	if o.Status != OrderStatusFilled || o.RemainingAmount != 0 {
		t.Fatalf("after closing fill got status=%s remaining=%d", o.Status, o.RemainingAmount)
	}

	if err := o.ApplyFill(1); !errors.Is(err, ErrOrderTerminal) {
		t.Fatalf("fill after filled: got %v, want ErrOrderTerminal", err)
	}
}

func TestApplyFillRejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func() *Order
		amount int64
		want   error
	}{
		{"zero amount", func() *Order { return newSellOrder(100) }, 0, ErrIntegrity},
		{"negative amount", func() *Order { return newSellOrder(100) }, -5, ErrIntegrity},
		{"exceeds remaining", func() *Order { return newSellOrder(100) }, 101, ErrFillExceedsRemaining},
		{"after cancel", func() *Order {
			o := newSellOrder(100)
			if _, err := o.Cancel(); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			return o
		}, 10, ErrOrderTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.setup()
			before := *o
			if err := o.ApplyFill(tt.amount); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if o.RemainingAmount != before.RemainingAmount || o.Status != before.Status {
				t.Fatalf("rejected fill mutated order: %+v", o)
			}
		})
	}
}

func TestCancelReleasesRemaining(t *testing.T) {
	o := newSellOrder(500)
	if err := o.ApplyFill(300); err != nil {
		t.Fatalf("fill: %v", err)
	}
	released, err := o.Cancel()
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if released != 200 {
		t.Fatalf("released %d, want 200", released)
	}
	if o.Status != OrderStatusCancelled {
		t.Fatalf("status %s, want cancelled", o.Status)
	}
}

func TestCancelTwiceIsDuplicate(t *testing.T) {
	o := newSellOrder(100)
	if _, err := o.Cancel(); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := o.Cancel(); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("second cancel: got %v, want ErrDuplicateEvent", err)
	}
}

func TestCancelFilledIsTerminal(t *testing.T) {
	o := newSellOrder(100)
	if err := o.ApplyFill(100); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if _, err := o.Cancel(); !errors.Is(err, ErrOrderTerminal) {
		t.Fatalf("cancel filled: got %v, want ErrOrderTerminal", err)
	}
}

func TestTotalValueOf(t *testing.T) {
	got, err := TotalValueOf(500, 1_500_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 750_000_000 {
		t.Fatalf("got %d, want 750000000", got)
	}

	if _, err := TotalValueOf(1<<40, 1<<40); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("overflow: got %v, want ErrIntegrity", err)
	}
	if _, err := TotalValueOf(0, 100); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("zero amount: got %v, want ErrIntegrity", err)
	}
}
