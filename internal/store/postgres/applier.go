package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brixmarket/syncengine/internal/domain"
)

// Applier implements domain.EventApplier over PostgreSQL. Each event runs
// in one transaction: the cursor row lock serializes applies per contract,
// and the order mutation, trade insert, ledger entries and cursor advance
// commit together or roll back together.
type Applier struct {
	pool *pgxpool.Pool
}

// NewApplier creates an Applier over the given connection pool.
func NewApplier(pool *pgxpool.Pool) *Applier {
	return &Applier{pool: pool}
}

// Apply implements domain.EventApplier.
func (a *Applier) Apply(ctx context.Context, ev domain.ChainEvent) (res domain.ApplyResult, err error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("postgres: begin apply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cErr := tx.Commit(ctx); cErr != nil {
			res = domain.ApplyResult{}
			err = fmt.Errorf("postgres: commit apply: %w", cErr)
		}
	}()

	change := domain.ChangeTypeFor(ev.Kind)
	contract := strings.ToLower(ev.Contract)

	// Lock (or create) the cursor row first; this serializes applies on the
	// same contract and lets us drop already-consumed events.
	cur, found, err := lockCursor(ctx, tx, contract)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if found && !cur.Before(ev.Cursor()) {
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: change}, nil
	}

	if vErr := ev.Validate(); vErr != nil {
		inc, qErr := a.quarantineEvent(ctx, tx, ev, 0, fmt.Sprintf("rejected event: %v", vErr))
		if qErr != nil {
			return domain.ApplyResult{}, qErr
		}
		return domain.ApplyResult{Outcome: domain.OutcomeQuarantined, Change: change, Incident: &inc}, nil
	}

	switch ev.Kind {
	case domain.EventOrderCreated:
		return a.applyCreated(ctx, tx, ev)
	case domain.EventOrderFilled:
		return a.applyFilled(ctx, tx, ev)
	default:
		return a.applyCancelled(ctx, tx, ev)
	}
}

func (a *Applier) applyCreated(ctx context.Context, tx pgx.Tx, ev domain.ChainEvent) (domain.ApplyResult, error) {
	p := ev.Created

	tag, err := tx.Exec(ctx,
		`INSERT INTO orders (
			contract, order_id, asset_id, maker, side,
			initial_amount, remaining_amount, price_ticks, status,
			tx_hash, block_number, block_time
		) VALUES ($1, $2, $3, $4, $5, $6, $6, $7, 'open', $8, $9, $10)
		ON CONFLICT (contract, order_id) DO NOTHING`,
		strings.ToLower(ev.Contract), p.OrderID, ev.AssetID, p.Maker, string(p.Side),
		p.Amount, p.PriceTicks, ev.TxHash, ev.BlockNumber, ev.BlockTime)
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("postgres: insert order %d: %w", p.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := advanceCursor(ctx, tx, ev); err != nil {
			return domain.ApplyResult{}, err
		}
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: domain.ChangeCreate}, nil
	}

	o := &domain.Order{
		Contract: ev.Contract, OrderID: p.OrderID, AssetID: ev.AssetID,
		Maker: p.Maker, Side: p.Side, InitialAmount: p.Amount,
	}
	if lock, ok := domain.LockEntry(o, ev); ok {
		if err := insertLedgerEntries(ctx, tx, lock); err != nil {
			return domain.ApplyResult{}, err
		}
	}
	if err := advanceCursor(ctx, tx, ev); err != nil {
		return domain.ApplyResult{}, err
	}
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Change: domain.ChangeCreate}, nil
}

func (a *Applier) applyFilled(ctx context.Context, tx pgx.Tx, ev domain.ChainEvent) (domain.ApplyResult, error) {
	p := ev.Filled

	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM trades WHERE tx_hash = $1 AND log_index = $2)`,
		ev.TxHash, int32(ev.LogIndex)).Scan(&exists)
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("postgres: check trade identity: %w", err)
	}
	if exists {
		if err := advanceCursor(ctx, tx, ev); err != nil {
			return domain.ApplyResult{}, err
		}
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: domain.ChangeFill}, nil
	}

	o, err := lockOrder(ctx, tx, ev.Contract, p.OrderID)
	if err != nil {
		return domain.ApplyResult{}, err
	}

	updated := o
	if fErr := updated.ApplyFill(p.Amount); fErr != nil {
		if errors.Is(fErr, domain.ErrOrderTerminal) || errors.Is(fErr, domain.ErrFillExceedsRemaining) {
			return a.quarantineOrder(ctx, tx, ev, p.OrderID, domain.ChangeFill, fErr.Error())
		}
		return domain.ApplyResult{}, fErr
	}

	total, tErr := domain.TotalValueOf(p.Amount, p.PriceTicks)
	if tErr != nil {
		return a.quarantineOrder(ctx, tx, ev, p.OrderID, domain.ChangeFill, tErr.Error())
	}

	buyer, seller := domain.FillParties(&o, p.Taker)
	_, err = tx.Exec(ctx,
		`INSERT INTO trades (
			tx_hash, log_index, contract, order_id, asset_id,
			buyer, seller, amount, price_ticks, total_value,
			block_number, block_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.TxHash, int32(ev.LogIndex), strings.ToLower(ev.Contract), p.OrderID, ev.AssetID,
		buyer, seller, p.Amount, p.PriceTicks, total,
		ev.BlockNumber, ev.BlockTime)
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("postgres: insert trade: %w", err)
	}

	if err := updateOrder(ctx, tx, &updated); err != nil {
		return domain.ApplyResult{}, err
	}
	if err := insertLedgerEntries(ctx, tx, domain.FillEntries(&o, p.Taker, p.Amount, ev)...); err != nil {
		return domain.ApplyResult{}, err
	}
	if err := advanceCursor(ctx, tx, ev); err != nil {
		return domain.ApplyResult{}, err
	}
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Change: domain.ChangeFill}, nil
}

func (a *Applier) applyCancelled(ctx context.Context, tx pgx.Tx, ev domain.ChainEvent) (domain.ApplyResult, error) {
	p := ev.Cancelled

	o, err := lockOrder(ctx, tx, ev.Contract, p.OrderID)
	if err != nil {
		return domain.ApplyResult{}, err
	}

	updated := o
	released, cErr := updated.Cancel()
	switch {
	case errors.Is(cErr, domain.ErrDuplicateEvent):
		if err := advanceCursor(ctx, tx, ev); err != nil {
			return domain.ApplyResult{}, err
		}
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: domain.ChangeCancel}, nil
	case errors.Is(cErr, domain.ErrOrderTerminal):
		return a.quarantineOrder(ctx, tx, ev, p.OrderID, domain.ChangeCancel, cErr.Error())
	case cErr != nil:
		return domain.ApplyResult{}, cErr
	}

	if err := updateOrder(ctx, tx, &updated); err != nil {
		return domain.ApplyResult{}, err
	}
	if rel, ok := domain.ReleaseEntry(&o, released, ev); ok {
		if err := insertLedgerEntries(ctx, tx, rel); err != nil {
			return domain.ApplyResult{}, err
		}
	}
	if err := advanceCursor(ctx, tx, ev); err != nil {
		return domain.ApplyResult{}, err
	}
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Change: domain.ChangeCancel}, nil
}

// QuarantineFrom implements domain.EventApplier. The cursor is left alone so
// the operator decides where indexing resumes after reconciliation.
func (a *Applier) QuarantineFrom(ctx context.Context, contract string, fromBlock uint64, inc domain.Incident) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin quarantine: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE orders SET needs_reconciliation = TRUE, updated_at = NOW()
		 WHERE contract = $1 AND block_number >= $2`,
		strings.ToLower(contract), fromBlock)
	if err != nil {
		return fmt.Errorf("postgres: quarantine orders from block %d: %w", fromBlock, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO incidents (id, kind, contract, asset_id, order_id, tx_hash, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inc.ID, string(inc.Kind), inc.Contract, inc.AssetID, inc.OrderID, inc.TxHash, inc.Detail)
	if err != nil {
		return fmt.Errorf("postgres: record quarantine incident: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit quarantine: %w", err)
	}
	return nil
}

// lockCursor reads the contract's cursor under FOR UPDATE, inserting a
// placeholder row first so there is always something to lock.
func lockCursor(ctx context.Context, tx pgx.Tx, contract string) (domain.Cursor, bool, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO event_cursors (contract, block_number, log_index)
		 VALUES ($1, 0, 0) ON CONFLICT (contract) DO NOTHING`, contract)
	if err != nil {
		return domain.Cursor{}, false, fmt.Errorf("postgres: ensure cursor row: %w", err)
	}

	var cur domain.Cursor
	var logIdx int32
	err = tx.QueryRow(ctx,
		`SELECT block_number, log_index FROM event_cursors WHERE contract = $1 FOR UPDATE`,
		contract).Scan(&cur.BlockNumber, &logIdx)
	if err != nil {
		return domain.Cursor{}, false, fmt.Errorf("postgres: lock cursor %s: %w", contract, err)
	}
	cur.LogIndex = uint(logIdx)
	// The placeholder (0,0) means nothing has been consumed yet.
	return cur, cur != (domain.Cursor{}), nil
}

func advanceCursor(ctx context.Context, tx pgx.Tx, ev domain.ChainEvent) error {
	_, err := tx.Exec(ctx,
		`UPDATE event_cursors SET block_number = $2, log_index = $3, block_hash = $4
		 WHERE contract = $1`,
		strings.ToLower(ev.Contract), ev.BlockNumber, int32(ev.LogIndex), ev.BlockHash)
	if err != nil {
		return fmt.Errorf("postgres: advance cursor: %w", err)
	}
	return nil
}

// lockOrder reads one order under FOR UPDATE. A missing row maps to
// ErrOrderNotReady: the create may still be in flight, so the fill or
// cancel is retried on the next tick.
func lockOrder(ctx context.Context, tx pgx.Tx, contract string, orderID int64) (domain.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE contract = $1 AND order_id = $2 FOR UPDATE`,
		strings.ToLower(contract), orderID)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("postgres: order %d: %w", orderID, domain.ErrOrderNotReady)
		}
		return domain.Order{}, fmt.Errorf("postgres: lock order %d: %w", orderID, err)
	}
	return o, nil
}

func updateOrder(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	_, err := tx.Exec(ctx,
		`UPDATE orders SET remaining_amount = $3, status = $4, updated_at = NOW()
		 WHERE contract = $1 AND order_id = $2`,
		strings.ToLower(o.Contract), o.OrderID, o.RemainingAmount, string(o.Status))
	if err != nil {
		return fmt.Errorf("postgres: update order %d: %w", o.OrderID, err)
	}
	return nil
}

func insertLedgerEntries(ctx context.Context, tx pgx.Tx, entries ...domain.LedgerEntry) error {
	batch := &pgx.Batch{}
	const query = `
		INSERT INTO ledger_entries (
			wallet_address, asset_id, amount, source,
			order_id, tx_hash, log_index, block_number, block_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, e := range entries {
		batch.Queue(query,
			e.WalletAddress, e.AssetID, e.Amount, string(e.Source),
			e.OrderID, e.TxHash, int32(e.LogIndex), e.BlockNumber, e.BlockTime)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert ledger entry %d: %w", i, err)
		}
	}
	return nil
}

// quarantineEvent records an incident for an event that cannot be applied
// and consumes the event by advancing the cursor.
func (a *Applier) quarantineEvent(ctx context.Context, tx pgx.Tx, ev domain.ChainEvent, orderID int64, detail string) (domain.Incident, error) {
	inc := domain.Incident{
		ID:       uuid.NewString(),
		Kind:     domain.IncidentIntegrity,
		Contract: ev.Contract,
		AssetID:  ev.AssetID,
		OrderID:  orderID,
		TxHash:   ev.TxHash,
		Detail:   detail,
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO incidents (id, kind, contract, asset_id, order_id, tx_hash, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inc.ID, string(inc.Kind), inc.Contract, inc.AssetID, inc.OrderID, inc.TxHash, inc.Detail)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("postgres: record incident: %w", err)
	}
	if err := advanceCursor(ctx, tx, ev); err != nil {
		return domain.Incident{}, err
	}
	return inc, nil
}

func (a *Applier) quarantineOrder(ctx context.Context, tx pgx.Tx, ev domain.ChainEvent, orderID int64, change domain.ChangeType, detail string) (domain.ApplyResult, error) {
	_, err := tx.Exec(ctx,
		`UPDATE orders SET needs_reconciliation = TRUE, updated_at = NOW()
		 WHERE contract = $1 AND order_id = $2`,
		strings.ToLower(ev.Contract), orderID)
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("postgres: flag order %d: %w", orderID, err)
	}
	inc, err := a.quarantineEvent(ctx, tx, ev, orderID, detail)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	return domain.ApplyResult{Outcome: domain.OutcomeQuarantined, Change: change, Incident: &inc}, nil
}
