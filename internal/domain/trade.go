package domain

import (
	"fmt"
	"time"
)

// Trade is an immutable record of one execution against one order. Identity
// is derived from (TxHash, LogIndex) so that re-delivered chain events
// insert idempotently.
type Trade struct {
	TxHash      string
	LogIndex    uint
	Contract    string
	OrderID     int64
	AssetID     string
	Buyer       string
	Seller      string
	Amount      int64
	PriceTicks  int64 // execution price, counter-asset base units per token
	TotalValue  int64 // Amount * PriceTicks, exact
	BlockNumber uint64
	BlockTime   time.Time
}

// TradeKey uniquely identifies a trade by its chain provenance.
type TradeKey struct {
	TxHash   string
	LogIndex uint
}

// Key returns the trade's unique provenance key.
func (t Trade) Key() TradeKey {
	return TradeKey{TxHash: t.TxHash, LogIndex: t.LogIndex}
}

// TotalValueOf multiplies an amount by a price with an overflow guard.
// The product must be exact; overflow is an integrity fault, never a
// silent wrap or rounding.
func TotalValueOf(amount, priceTicks int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("trade amount %d: %w", amount, ErrIntegrity)
	}
	if priceTicks < 0 {
		return 0, fmt.Errorf("trade price %d: %w", priceTicks, ErrIntegrity)
	}
	total := amount * priceTicks
	if priceTicks != 0 && total/priceTicks != amount {
		return 0, fmt.Errorf("total value overflow for %d x %d: %w", amount, priceTicks, ErrIntegrity)
	}
	return total, nil
}

// Validate checks the trade-level invariants.
func (t Trade) Validate() error {
	total, err := TotalValueOf(t.Amount, t.PriceTicks)
	if err != nil {
		return err
	}
	if total != t.TotalValue {
		return fmt.Errorf("trade %s/%d: total value %d != %d x %d: %w",
			t.TxHash, t.LogIndex, t.TotalValue, t.Amount, t.PriceTicks, ErrIntegrity)
	}
	return nil
}
