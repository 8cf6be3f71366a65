package domain

import (
	"fmt"
	"time"
)

// EventKind discriminates the tagged chain-event variant.
type EventKind string

const (
	EventOrderCreated   EventKind = "order_created"
	EventOrderFilled    EventKind = "order_filled"
	EventOrderCancelled EventKind = "order_cancelled"
)

// OrderCreatedPayload carries the fields of an OrderCreated log.
type OrderCreatedPayload struct {
	OrderID    int64
	Maker      string
	Side       OrderSide
	Amount     int64
	PriceTicks int64
}

// OrderFilledPayload carries the fields of an OrderFilled log.
type OrderFilledPayload struct {
	OrderID    int64
	Taker      string
	Amount     int64
	PriceTicks int64
}

// OrderCancelledPayload carries the fields of an OrderCancelled log.
type OrderCancelledPayload struct {
	OrderID int64
}

// ChainEvent is one decoded log from an asset-token market contract.
// Exactly one payload pointer is set, matching Kind; unknown shapes are
// rejected by Validate rather than coerced.
type ChainEvent struct {
	Kind        EventKind
	Contract    string
	AssetID     string
	BlockNumber uint64
	BlockHash   string
	LogIndex    uint
	TxHash      string
	BlockTime   time.Time

	Created   *OrderCreatedPayload
	Filled    *OrderFilledPayload
	Cancelled *OrderCancelledPayload
}

// OrderID returns the order the event concerns, or 0 when the payload
// could not be decoded.
func (e ChainEvent) OrderID() int64 {
	switch {
	case e.Created != nil:
		return e.Created.OrderID
	case e.Filled != nil:
		return e.Filled.OrderID
	case e.Cancelled != nil:
		return e.Cancelled.OrderID
	}
	return 0
}

// Cursor returns the event's position as a cursor value.
func (e ChainEvent) Cursor() Cursor {
	return Cursor{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// Validate checks that the event is a known shape with exactly the payload
// its kind requires and chain provenance attached.
func (e ChainEvent) Validate() error {
	if e.TxHash == "" || e.BlockNumber == 0 {
		return fmt.Errorf("event missing provenance: %w", ErrUnknownEvent)
	}
	switch e.Kind {
	case EventOrderCreated:
		if e.Created == nil || e.Filled != nil || e.Cancelled != nil {
			return fmt.Errorf("order_created payload mismatch: %w", ErrUnknownEvent)
		}
		p := e.Created
		if p.OrderID <= 0 || p.Amount <= 0 || p.PriceTicks <= 0 {
			return fmt.Errorf("order_created fields order=%d amount=%d price=%d: %w",
				p.OrderID, p.Amount, p.PriceTicks, ErrUnknownEvent)
		}
		if p.Side != OrderSideBuy && p.Side != OrderSideSell {
			return fmt.Errorf("order_created side %q: %w", p.Side, ErrUnknownEvent)
		}
	case EventOrderFilled:
		if e.Filled == nil || e.Created != nil || e.Cancelled != nil {
			return fmt.Errorf("order_filled payload mismatch: %w", ErrUnknownEvent)
		}
		p := e.Filled
		if p.OrderID <= 0 || p.Amount <= 0 || p.PriceTicks <= 0 {
			return fmt.Errorf("order_filled fields order=%d amount=%d price=%d: %w",
				p.OrderID, p.Amount, p.PriceTicks, ErrUnknownEvent)
		}
	case EventOrderCancelled:
		if e.Cancelled == nil || e.Created != nil || e.Filled != nil {
			return fmt.Errorf("order_cancelled payload mismatch: %w", ErrUnknownEvent)
		}
		if e.Cancelled.OrderID <= 0 {
			return fmt.Errorf("order_cancelled order=%d: %w", e.Cancelled.OrderID, ErrUnknownEvent)
		}
	default:
		return fmt.Errorf("event kind %q: %w", e.Kind, ErrUnknownEvent)
	}
	return nil
}

// ChangeType is the orderbook change category pushed to subscribers after
// an event commits.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeFill   ChangeType = "fill"
	ChangeCancel ChangeType = "cancel"
)

// ChangeTypeFor maps an event kind to its notification change type.
func ChangeTypeFor(kind EventKind) ChangeType {
	switch kind {
	case EventOrderCreated:
		return ChangeCreate
	case EventOrderFilled:
		return ChangeFill
	default:
		return ChangeCancel
	}
}

// BookChange is the at-most-once notification published to subscribers of
// an asset after a committed orderbook change.
type BookChange struct {
	AssetID    string     `json:"asset_id"`
	ChangeType ChangeType `json:"change_type"`
}

// BookChannel names the pub/sub channel carrying one asset's book changes.
func BookChannel(assetID string) string {
	return "ch:book:" + assetID
}
