package domain

import (
	"fmt"
	"time"
)

// OrderSide indicates whether this is a buy (bid) or sell (ask).
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle as materialized from chain events.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further fills may be applied to an order in
// this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Order is the materialized state of one resting order on an asset-token
// market contract. OrderID is chain-assigned and monotonic per contract.
//
// Amounts are whole asset-token units; PriceTicks is counter-asset base
// units (6-decimal stable token) per asset token.
type Order struct {
	Contract        string // market contract address
	OrderID         int64
	AssetID         string
	TokenAddress    string
	Maker           string
	Side            OrderSide
	InitialAmount   int64
	RemainingAmount int64
	PriceTicks      int64
	Status          OrderStatus

	// Flagged orders are excluded from orderbook and query projections
	// until an operator reconciles them.
	NeedsReconciliation bool

	TxHash      string
	BlockNumber uint64
	BlockTime   time.Time
	UpdatedAt   time.Time
}

// ApplyFill decrements the remaining amount by the filled quantity and
// advances the status. It mutates the order only on success.
func (o *Order) ApplyFill(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("fill amount %d: %w", amount, ErrIntegrity)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("order %d is %s: %w", o.OrderID, o.Status, ErrOrderTerminal)
	}
	if amount > o.RemainingAmount {
		return fmt.Errorf("fill %d exceeds remaining %d on order %d: %w",
			amount, o.RemainingAmount, o.OrderID, ErrFillExceedsRemaining)
	}

	o.RemainingAmount -= amount
	if o.RemainingAmount == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartial
	}
	return nil
}

// Cancel transitions the order to CANCELLED and returns the locked amount
// to release. Cancellation is terminal and mutually exclusive with fills.
func (o *Order) Cancel() (released int64, err error) {
	switch o.Status {
	case OrderStatusCancelled:
		return 0, ErrDuplicateEvent
	case OrderStatusFilled:
		return 0, fmt.Errorf("cancel of filled order %d: %w", o.OrderID, ErrOrderTerminal)
	}
	released = o.RemainingAmount
	o.Status = OrderStatusCancelled
	return released, nil
}

// CheckInvariants verifies the order-level invariants that must hold after
// every event application.
func (o *Order) CheckInvariants() error {
	if o.RemainingAmount < 0 || o.RemainingAmount > o.InitialAmount {
		return fmt.Errorf("order %d: remaining %d outside [0, %d]: %w",
			o.OrderID, o.RemainingAmount, o.InitialAmount, ErrIntegrity)
	}
	if (o.Status == OrderStatusFilled) != (o.RemainingAmount == 0) && o.Status != OrderStatusCancelled {
		return fmt.Errorf("order %d: status %s with remaining %d: %w",
			o.OrderID, o.Status, o.RemainingAmount, ErrIntegrity)
	}
	return nil
}
