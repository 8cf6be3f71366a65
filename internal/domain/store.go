package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists materialized orders.
type OrderStore interface {
	Get(ctx context.Context, contract string, orderID int64) (Order, error)
	ListOpenByAsset(ctx context.Context, assetID string) ([]Order, error)
	// ListByAsset returns an asset's orders in chain order, oldest first.
	ListByAsset(ctx context.Context, assetID string, opts ListOpts) ([]Order, error)
	ListByMaker(ctx context.Context, maker string, opts ListOpts) ([]Order, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists trade executions.
type TradeStore interface {
	ListByAsset(ctx context.Context, assetID string, opts ListOpts) ([]Trade, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Trade, error)
	LastBefore(ctx context.Context, assetID string, cutoff time.Time) (Trade, error)
	ListSince(ctx context.Context, assetID string, since time.Time) ([]Trade, error)
}

// LedgerStore reads the append-only balance ledger.
type LedgerStore interface {
	SumWallet(ctx context.Context, wallet, assetID string) (BalanceSums, error)
	ListByWallet(ctx context.Context, wallet, assetID string, opts ListOpts) ([]LedgerEntry, error)
}

// CursorStore persists per-contract indexing positions.
type CursorStore interface {
	Get(ctx context.Context, contract string) (EventCursor, error)
	Put(ctx context.Context, cur EventCursor) error
	List(ctx context.Context) ([]EventCursor, error)
}

// IncidentStore persists quarantine incidents.
type IncidentStore interface {
	Create(ctx context.Context, inc Incident) error
	Resolve(ctx context.Context, id string) error
	ListOpen(ctx context.Context, opts ListOpts) ([]Incident, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// ApplyOutcome classifies the result of applying one chain event.
type ApplyOutcome string

const (
	OutcomeApplied     ApplyOutcome = "applied"
	OutcomeDuplicate   ApplyOutcome = "duplicate"
	OutcomeQuarantined ApplyOutcome = "quarantined"
)

// ApplyResult reports what happened to an event and what, if anything,
// changed in the materialized state.
type ApplyResult struct {
	Outcome  ApplyOutcome
	Change   ChangeType
	Incident *Incident // set when Outcome is OutcomeQuarantined
}

// EventApplier applies chain events to the materialized state. Apply is
// atomic per event: either every derived write lands together with the
// cursor advance, or none do. A non-nil error means the event was not
// consumed and must be redelivered.
type EventApplier interface {
	Apply(ctx context.Context, ev ChainEvent) (ApplyResult, error)
	// QuarantineFrom marks every record derived from blocks at or above
	// fromBlock on the contract as needing reconciliation.
	QuarantineFrom(ctx context.Context, contract string, fromBlock uint64, inc Incident) error
}

// EventSource reads confirmed contract events from a chain.
type EventSource interface {
	ConfirmedHead(ctx context.Context) (uint64, error)
	ListEvents(ctx context.Context, contract string, after Cursor, toBlock uint64) ([]ChainEvent, error)
	// VerifyCanonical reports whether the block the cursor last consumed
	// is still on the canonical chain. A false result signals a reorg.
	VerifyCanonical(ctx context.Context, cur EventCursor) (bool, error)
}

// BalanceProvider reads on-chain token balances.
type BalanceProvider interface {
	WalletBalance(ctx context.Context, tokenAddress, wallet string) (int64, error)
}

// Signal is one bus delivery. Channel is the concrete channel the payload
// arrived on, even when the subscription was a pattern.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus provides pub/sub fan-out for book change notifications.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Signal, error)
}

// LockManager serializes singleton jobs across replicas. Acquire returns an
// unlock function, or ErrLockHeld when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BookCache stores rendered book snapshots for fast reads.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, assetID string) (BookSnapshot, error)
	Invalidate(ctx context.Context, assetID string) error
}
