package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brixmarket/syncengine/internal/domain"
)

// Applier applies chain events to a Store. One event is applied under one
// lock acquisition, so its order mutation, trade insert, ledger entries and
// cursor advance land together or not at all.
type Applier struct {
	store *Store
}

// NewApplier returns an Applier over the given store.
func NewApplier(store *Store) *Applier {
	return &Applier{store: store}
}

// Apply implements domain.EventApplier.
func (a *Applier) Apply(ctx context.Context, ev domain.ChainEvent) (domain.ApplyResult, error) {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	change := domain.ChangeTypeFor(ev.Kind)

	// Events at or before the cursor were already consumed.
	if cur, ok := s.cursors[strings.ToLower(ev.Contract)]; ok && !cur.Position.Before(ev.Cursor()) {
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: change}, nil
	}

	if err := ev.Validate(); err != nil {
		inc := a.quarantineLocked(ev, 0, fmt.Sprintf("rejected event: %v", err))
		a.advanceLocked(ev)
		return domain.ApplyResult{Outcome: domain.OutcomeQuarantined, Change: change, Incident: &inc}, nil
	}

	switch ev.Kind {
	case domain.EventOrderCreated:
		return a.applyCreated(ev)
	case domain.EventOrderFilled:
		return a.applyFilled(ev)
	default:
		return a.applyCancelled(ev)
	}
}

func (a *Applier) applyCreated(ev domain.ChainEvent) (domain.ApplyResult, error) {
	s := a.store
	p := ev.Created
	key := keyOf(ev.Contract, p.OrderID)

	if _, ok := s.orders[key]; ok {
		a.advanceLocked(ev)
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: domain.ChangeCreate}, nil
	}

	o := &domain.Order{
		Contract:        ev.Contract,
		OrderID:         p.OrderID,
		AssetID:         ev.AssetID,
		Maker:           p.Maker,
		Side:            p.Side,
		InitialAmount:   p.Amount,
		RemainingAmount: p.Amount,
		PriceTicks:      p.PriceTicks,
		Status:          domain.OrderStatusOpen,
		TxHash:          ev.TxHash,
		BlockNumber:     ev.BlockNumber,
		BlockTime:       ev.BlockTime,
		UpdatedAt:       time.Now().UTC(),
	}
	s.orders[key] = o

	if lock, ok := domain.LockEntry(o, ev); ok {
		s.appendLedgerLocked(lock)
	}
	a.advanceLocked(ev)
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Change: domain.ChangeCreate}, nil
}

func (a *Applier) applyFilled(ev domain.ChainEvent) (domain.ApplyResult, error) {
	s := a.store
	p := ev.Filled

	if s.tradeKeys[domain.TradeKey{TxHash: ev.TxHash, LogIndex: ev.LogIndex}] {
		a.advanceLocked(ev)
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: domain.ChangeFill}, nil
	}

	o, ok := s.orders[keyOf(ev.Contract, p.OrderID)]
	if !ok {
		// The create may still be in flight; retry next tick.
		return domain.ApplyResult{}, fmt.Errorf("memory: fill for order %d: %w", p.OrderID, domain.ErrOrderNotReady)
	}

	updated := *o
	if err := updated.ApplyFill(p.Amount); err != nil {
		if errors.Is(err, domain.ErrOrderTerminal) || errors.Is(err, domain.ErrFillExceedsRemaining) {
			o.NeedsReconciliation = true
			inc := a.quarantineLocked(ev, p.OrderID, err.Error())
			a.advanceLocked(ev)
			return domain.ApplyResult{Outcome: domain.OutcomeQuarantined, Change: domain.ChangeFill, Incident: &inc}, nil
		}
		return domain.ApplyResult{}, err
	}

	total, err := domain.TotalValueOf(p.Amount, p.PriceTicks)
	if err != nil {
		o.NeedsReconciliation = true
		inc := a.quarantineLocked(ev, p.OrderID, err.Error())
		a.advanceLocked(ev)
		return domain.ApplyResult{Outcome: domain.OutcomeQuarantined, Change: domain.ChangeFill, Incident: &inc}, nil
	}

	buyer, seller := domain.FillParties(o, p.Taker)
	trade := domain.Trade{
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Contract:    ev.Contract,
		OrderID:     p.OrderID,
		AssetID:     ev.AssetID,
		Buyer:       buyer,
		Seller:      seller,
		Amount:      p.Amount,
		PriceTicks:  p.PriceTicks,
		TotalValue:  total,
		BlockNumber: ev.BlockNumber,
		BlockTime:   ev.BlockTime,
	}

	updated.UpdatedAt = time.Now().UTC()
	*o = updated
	s.trades = append(s.trades, trade)
	s.tradeKeys[trade.Key()] = true
	s.appendLedgerLocked(domain.FillEntries(o, p.Taker, p.Amount, ev)...)
	a.advanceLocked(ev)
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Change: domain.ChangeFill}, nil
}

func (a *Applier) applyCancelled(ev domain.ChainEvent) (domain.ApplyResult, error) {
	s := a.store
	p := ev.Cancelled

	o, ok := s.orders[keyOf(ev.Contract, p.OrderID)]
	if !ok {
		return domain.ApplyResult{}, fmt.Errorf("memory: cancel for order %d: %w", p.OrderID, domain.ErrOrderNotReady)
	}

	updated := *o
	released, err := updated.Cancel()
	switch {
	case errors.Is(err, domain.ErrDuplicateEvent):
		a.advanceLocked(ev)
		return domain.ApplyResult{Outcome: domain.OutcomeDuplicate, Change: domain.ChangeCancel}, nil
	case errors.Is(err, domain.ErrOrderTerminal):
		o.NeedsReconciliation = true
		inc := a.quarantineLocked(ev, p.OrderID, err.Error())
		a.advanceLocked(ev)
		return domain.ApplyResult{Outcome: domain.OutcomeQuarantined, Change: domain.ChangeCancel, Incident: &inc}, nil
	case err != nil:
		return domain.ApplyResult{}, err
	}

	updated.UpdatedAt = time.Now().UTC()
	*o = updated
	if rel, ok := domain.ReleaseEntry(o, released, ev); ok {
		s.appendLedgerLocked(rel)
	}
	a.advanceLocked(ev)
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Change: domain.ChangeCancel}, nil
}

// QuarantineFrom implements domain.EventApplier. The cursor is left alone so
// the operator decides where indexing resumes after reconciliation.
func (a *Applier) QuarantineFrom(ctx context.Context, contract string, fromBlock uint64, inc domain.Incident) error {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	contract = strings.ToLower(contract)
	for key, o := range s.orders {
		if key.contract == contract && o.BlockNumber >= fromBlock {
			o.NeedsReconciliation = true
		}
	}
	s.createIncidentLocked(inc)
	return nil
}

func (a *Applier) advanceLocked(ev domain.ChainEvent) {
	a.store.cursors[strings.ToLower(ev.Contract)] = domain.EventCursor{
		Contract:  ev.Contract,
		Position:  ev.Cursor(),
		BlockHash: ev.BlockHash,
	}
}

func (a *Applier) quarantineLocked(ev domain.ChainEvent, orderID int64, detail string) domain.Incident {
	inc := domain.Incident{
		ID:        uuid.NewString(),
		Kind:      domain.IncidentIntegrity,
		Contract:  ev.Contract,
		AssetID:   ev.AssetID,
		OrderID:   orderID,
		TxHash:    ev.TxHash,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	a.store.createIncidentLocked(inc)
	return inc
}
