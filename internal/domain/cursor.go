package domain

// Cursor is a position in one contract's event stream. Events are totally
// ordered per contract by (BlockNumber, LogIndex).
type Cursor struct {
	BlockNumber uint64
	LogIndex    uint
}

// Before reports whether c precedes other in chain order.
func (c Cursor) Before(other Cursor) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber < other.BlockNumber
	}
	return c.LogIndex < other.LogIndex
}

// EventCursor is the durable per-contract watermark. It is mutated only by
// the indexer's apply step, inside the same atomic unit as the event's
// effects, and is read by other components only to resume polling.
type EventCursor struct {
	Contract  string
	Position  Cursor
	BlockHash string // hash of Position.BlockNumber, for reorg detection
}
