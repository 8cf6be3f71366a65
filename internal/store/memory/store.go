// Package memory implements the domain store interfaces in process memory.
// It backs the standalone mode and tests; semantics mirror the postgres
// implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

type orderKey struct {
	contract string
	orderID  int64
}

// Store holds all materialized state behind one mutex. The applier
// serializes writers; readers take the shared lock and copy out. The
// typed accessor views satisfy the individual domain store interfaces.
type Store struct {
	mu sync.RWMutex

	orders    map[orderKey]*domain.Order
	trades    []domain.Trade
	tradeKeys map[domain.TradeKey]bool
	ledger    []domain.LedgerEntry
	cursors   map[string]domain.EventCursor
	incidents map[string]domain.Incident
	audit     []domain.AuditEntry

	nextLedgerID int64
	nextAuditID  int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		orders:    make(map[orderKey]*domain.Order),
		tradeKeys: make(map[domain.TradeKey]bool),
		cursors:   make(map[string]domain.EventCursor),
		incidents: make(map[string]domain.Incident),
	}
}

func (s *Store) Orders() domain.OrderStore       { return orderView{s} }
func (s *Store) Trades() domain.TradeStore       { return tradeView{s} }
func (s *Store) Ledger() domain.LedgerStore      { return ledgerView{s} }
func (s *Store) Cursors() domain.CursorStore     { return cursorView{s} }
func (s *Store) Incidents() domain.IncidentStore { return incidentView{s} }
func (s *Store) Audit() domain.AuditStore        { return auditView{s} }

func keyOf(contract string, orderID int64) orderKey {
	return orderKey{contract: strings.ToLower(contract), orderID: orderID}
}

// AppendLedger inserts entries outside the event-apply path, e.g. primary
// market purchase records seeded by an operator or the standalone scenario.
func (s *Store) AppendLedger(ctx context.Context, entries ...domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLedgerLocked(entries...)
	return nil
}

func (s *Store) appendLedgerLocked(entries ...domain.LedgerEntry) {
	now := time.Now().UTC()
	for _, e := range entries {
		s.nextLedgerID++
		e.ID = s.nextLedgerID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		s.ledger = append(s.ledger, e)
	}
}

func (s *Store) createIncidentLocked(inc domain.Incident) {
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	s.incidents[inc.ID] = inc
}

// ---------------------------------------------------------------------------
// domain.OrderStore
// ---------------------------------------------------------------------------

type orderView struct{ s *Store }

func (v orderView) Get(ctx context.Context, contract string, orderID int64) (domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	o, ok := v.s.orders[keyOf(contract, orderID)]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return *o, nil
}

func (v orderView) ListOpenByAsset(ctx context.Context, assetID string) ([]domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Order
	for _, o := range v.s.orders {
		if o.AssetID != assetID || o.Status.Terminal() || o.NeedsReconciliation {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (v orderView) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Order
	for _, o := range v.s.orders {
		if o.AssetID != assetID {
			continue
		}
		if opts.Since != nil && o.BlockTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && o.BlockTime.After(*opts.Until) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BlockTime.Equal(out[j].BlockTime) {
			return out[i].BlockTime.Before(out[j].BlockTime)
		}
		return out[i].OrderID < out[j].OrderID
	})
	return paginate(out, opts), nil
}

func (v orderView) ListByMaker(ctx context.Context, maker string, opts domain.ListOpts) ([]domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	maker = strings.ToLower(maker)
	var out []domain.Order
	for _, o := range v.s.orders {
		if strings.ToLower(o.Maker) != maker {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BlockTime.Equal(out[j].BlockTime) {
			return out[i].BlockTime.After(out[j].BlockTime)
		}
		return out[i].OrderID > out[j].OrderID
	})
	return paginate(out, opts), nil
}

func (v orderView) Count(ctx context.Context) (int64, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return int64(len(v.s.orders)), nil
}

// ---------------------------------------------------------------------------
// domain.TradeStore
// ---------------------------------------------------------------------------

type tradeView struct{ s *Store }

func (v tradeView) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.Trade, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Trade
	for _, t := range v.s.trades {
		if t.AssetID != assetID {
			continue
		}
		if opts.Since != nil && t.BlockTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && t.BlockTime.After(*opts.Until) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.After(out[j].BlockTime) })
	return paginate(out, opts), nil
}

func (v tradeView) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Trade, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	wallet = strings.ToLower(wallet)
	var out []domain.Trade
	for _, t := range v.s.trades {
		if strings.ToLower(t.Buyer) != wallet && strings.ToLower(t.Seller) != wallet {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.After(out[j].BlockTime) })
	return paginate(out, opts), nil
}

func (v tradeView) LastBefore(ctx context.Context, assetID string, cutoff time.Time) (domain.Trade, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var best *domain.Trade
	for i := range v.s.trades {
		t := &v.s.trades[i]
		if t.AssetID != assetID || t.BlockTime.After(cutoff) {
			continue
		}
		if best == nil || t.BlockTime.After(best.BlockTime) {
			best = t
		}
	}
	if best == nil {
		return domain.Trade{}, domain.ErrNotFound
	}
	return *best, nil
}

func (v tradeView) ListSince(ctx context.Context, assetID string, since time.Time) ([]domain.Trade, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Trade
	for _, t := range v.s.trades {
		if t.AssetID != assetID || t.BlockTime.Before(since) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BlockTime.Equal(out[j].BlockTime) {
			return out[i].BlockTime.Before(out[j].BlockTime)
		}
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// domain.LedgerStore
// ---------------------------------------------------------------------------

type ledgerView struct{ s *Store }

func (v ledgerView) SumWallet(ctx context.Context, wallet, assetID string) (domain.BalanceSums, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	wallet = strings.ToLower(wallet)
	var sums domain.BalanceSums
	for _, e := range v.s.ledger {
		if strings.ToLower(e.WalletAddress) != wallet || e.AssetID != assetID {
			continue
		}
		sums.Accumulate(e)
	}
	return sums, nil
}

func (v ledgerView) ListByWallet(ctx context.Context, wallet, assetID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	wallet = strings.ToLower(wallet)
	var out []domain.LedgerEntry
	for _, e := range v.s.ledger {
		if strings.ToLower(e.WalletAddress) != wallet || e.AssetID != assetID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, opts), nil
}

// ---------------------------------------------------------------------------
// domain.CursorStore
// ---------------------------------------------------------------------------

type cursorView struct{ s *Store }

func (v cursorView) Get(ctx context.Context, contract string) (domain.EventCursor, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	cur, ok := v.s.cursors[strings.ToLower(contract)]
	if !ok {
		return domain.EventCursor{}, domain.ErrNotFound
	}
	return cur, nil
}

func (v cursorView) Put(ctx context.Context, cur domain.EventCursor) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.cursors[strings.ToLower(cur.Contract)] = cur
	return nil
}

func (v cursorView) List(ctx context.Context) ([]domain.EventCursor, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]domain.EventCursor, 0, len(v.s.cursors))
	for _, cur := range v.s.cursors {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contract < out[j].Contract })
	return out, nil
}

// ---------------------------------------------------------------------------
// domain.IncidentStore
// ---------------------------------------------------------------------------

type incidentView struct{ s *Store }

func (v incidentView) Create(ctx context.Context, inc domain.Incident) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.createIncidentLocked(inc)
	return nil
}

func (v incidentView) Resolve(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	inc, ok := v.s.incidents[id]
	if !ok {
		return domain.ErrNotFound
	}
	inc.Resolved = true
	v.s.incidents[id] = inc
	return nil
}

func (v incidentView) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Incident, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Incident
	for _, inc := range v.s.incidents {
		if inc.Resolved {
			continue
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, opts), nil
}

// ---------------------------------------------------------------------------
// domain.AuditStore
// ---------------------------------------------------------------------------

type auditView struct{ s *Store }

func (v auditView) Log(ctx context.Context, event string, detail map[string]any) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextAuditID++
	v.s.audit = append(v.s.audit, domain.AuditEntry{
		ID:        v.s.nextAuditID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (v auditView) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(v.s.audit))
	copy(out, v.s.audit)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, opts), nil
}

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
