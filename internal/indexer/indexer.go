// Package indexer drives the chain-to-store synchronization loop. One
// goroutine per tracked contract polls the event source, applies each
// event through the storage applier, and publishes book-change signals
// for committed changes.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brixmarket/syncengine/internal/domain"
)

// Alerter receives operator notifications for events that need human
// attention. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config carries the loop timings for an Indexer.
type Config struct {
	PollInterval time.Duration
	TickTimeout  time.Duration
	BatchBlocks  uint64
}

// Indexer synchronizes the materialized store with confirmed chain events.
type Indexer struct {
	source    domain.EventSource
	applier   domain.EventApplier
	cursors   domain.CursorStore
	contracts []domain.AssetContract
	cfg       Config

	bus     domain.SignalBus // optional
	cache   domain.BookCache // optional
	alerter Alerter          // optional
	audit   domain.AuditStore

	logger *slog.Logger

	mu          sync.Mutex
	reorgued    map[string]bool // contracts halted on a detected reorg
	lastAlerted map[string]time.Time
}

// Option configures optional collaborators on an Indexer.
type Option func(*Indexer)

// WithSignalBus publishes a book-change signal after every applied event.
func WithSignalBus(bus domain.SignalBus) Option {
	return func(ix *Indexer) { ix.bus = bus }
}

// WithBookCache drops an asset's cached book snapshot after every applied
// event, so readers never see a pre-commit book for longer than it takes
// them to rebuild.
func WithBookCache(cache domain.BookCache) Option {
	return func(ix *Indexer) { ix.cache = cache }
}

// WithAlerter forwards quarantine and reorg incidents to operators.
func WithAlerter(a Alerter) Option {
	return func(ix *Indexer) { ix.alerter = a }
}

// WithAudit records incident lifecycle entries in the audit log.
func WithAudit(audit domain.AuditStore) Option {
	return func(ix *Indexer) { ix.audit = audit }
}

// New creates an Indexer over the given source, applier and cursor store.
func New(source domain.EventSource, applier domain.EventApplier, cursors domain.CursorStore, contracts []domain.AssetContract, cfg Config, logger *slog.Logger, opts ...Option) (*Indexer, error) {
	if source == nil || applier == nil || cursors == nil {
		return nil, errors.New("indexer: source, applier and cursor store are required")
	}
	if len(contracts) == 0 {
		return nil, errors.New("indexer: no contracts to track")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 30 * time.Second
	}
	if cfg.BatchBlocks == 0 {
		cfg.BatchBlocks = 2000
	}
	ix := &Indexer{
		source:      source,
		applier:     applier,
		cursors:     cursors,
		contracts:   contracts,
		cfg:         cfg,
		logger:      logger.With("component", "indexer"),
		reorgued:    make(map[string]bool),
		lastAlerted: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Run blocks until ctx is cancelled, polling every tracked contract.
func (ix *Indexer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range ix.contracts {
		contract := c
		g.Go(func() error { return ix.runContract(ctx, contract) })
	}
	ix.logger.Info("indexer started",
		"contracts", len(ix.contracts),
		"poll_interval", ix.cfg.PollInterval,
		"batch_blocks", ix.cfg.BatchBlocks)
	return g.Wait()
}

func (ix *Indexer) runContract(ctx context.Context, asset domain.AssetContract) error {
	log := ix.logger.With("asset", asset.AssetID, "contract", asset.Contract)

	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()

	// First tick immediately, then on the interval.
	for {
		if err := ix.tick(ctx, asset, log); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one synchronization pass for a single contract. Exported for
// on-demand catch-up outside the polling loop.
func (ix *Indexer) Tick(ctx context.Context, asset domain.AssetContract) error {
	return ix.tick(ctx, asset, ix.logger.With("asset", asset.AssetID))
}

func (ix *Indexer) tick(ctx context.Context, asset domain.AssetContract, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.TickTimeout)
	defer cancel()

	cur, err := ix.cursors.Get(ctx, asset.Contract)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		cur = domain.EventCursor{Contract: asset.Contract}
	case err != nil:
		return fmt.Errorf("indexer: read cursor: %w", err)
	}

	if cur.BlockHash != "" {
		ok, err := ix.source.VerifyCanonical(ctx, cur)
		if err != nil {
			return fmt.Errorf("indexer: verify cursor block: %w", err)
		}
		if !ok {
			return ix.handleReorg(ctx, asset, cur, log)
		}
		ix.clearReorg(asset.Contract)
	}

	head, err := ix.source.ConfirmedHead(ctx)
	if err != nil {
		return fmt.Errorf("indexer: confirmed head: %w", err)
	}
	if head < cur.Position.BlockNumber {
		return nil
	}
	toBlock := min(head, cur.Position.BlockNumber+ix.cfg.BatchBlocks)

	events, err := ix.source.ListEvents(ctx, asset.Contract, cur.Position, toBlock)
	if err != nil {
		return fmt.Errorf("indexer: list events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	var applied, duplicates, quarantined int
	for _, ev := range events {
		res, err := ix.applier.Apply(ctx, ev)
		if err != nil {
			// The cursor did not advance; the same event is retried
			// on the next tick.
			if errors.Is(err, domain.ErrOrderNotReady) {
				log.Info("event not ready, deferring",
					"order_id", ev.OrderID(), "block", ev.BlockNumber)
				break
			}
			return fmt.Errorf("indexer: apply event %s/%d: %w", ev.TxHash, ev.LogIndex, err)
		}
		switch res.Outcome {
		case domain.OutcomeApplied:
			applied++
			ix.publishChange(ctx, asset.AssetID, res.Change, log)
		case domain.OutcomeDuplicate:
			duplicates++
			log.Debug("duplicate event skipped",
				"kind", ev.Kind, "order_id", ev.OrderID(), "tx", ev.TxHash)
		case domain.OutcomeQuarantined:
			quarantined++
			ix.reportIncident(ctx, res.Incident, log)
		}
	}
	if applied > 0 || quarantined > 0 {
		log.Info("tick complete",
			"events", len(events),
			"applied", applied,
			"duplicates", duplicates,
			"quarantined", quarantined,
			"to_block", toBlock)
	}
	return nil
}

// handleReorg halts a contract after its cursor block left the canonical
// chain. Affected rows are quarantined once; the cursor is left in place so
// an operator can reset it after reconciliation.
func (ix *Indexer) handleReorg(ctx context.Context, asset domain.AssetContract, cur domain.EventCursor, log *slog.Logger) error {
	ix.mu.Lock()
	already := ix.reorgued[asset.Contract]
	ix.reorgued[asset.Contract] = true
	ix.mu.Unlock()
	if already {
		log.Debug("contract halted on reorg, awaiting cursor reset",
			"block", cur.Position.BlockNumber)
		return nil
	}

	inc := domain.Incident{
		ID:       uuid.NewString(),
		Kind:     domain.IncidentReorg,
		Contract: asset.Contract,
		AssetID:  asset.AssetID,
		Detail: fmt.Sprintf("cursor block %d hash %s is no longer canonical",
			cur.Position.BlockNumber, cur.BlockHash),
	}
	if err := ix.applier.QuarantineFrom(ctx, asset.Contract, cur.Position.BlockNumber, inc); err != nil {
		// Retry on the next tick.
		ix.mu.Lock()
		ix.reorgued[asset.Contract] = false
		ix.mu.Unlock()
		return fmt.Errorf("indexer: quarantine after reorg: %w", err)
	}
	log.Warn("reorg detected, contract halted",
		"block", cur.Position.BlockNumber, "hash", cur.BlockHash)

	if ix.audit != nil {
		_ = ix.audit.Log(ctx, "reorg_halt", map[string]any{
			"contract": asset.Contract,
			"block":    cur.Position.BlockNumber,
			"detail":   inc.Detail,
		})
	}
	ix.alert(ctx, "reorg", "Chain reorg detected",
		fmt.Sprintf("%s (%s): %s. Indexing is halted until the cursor is reset.",
			asset.Symbol, asset.Contract, inc.Detail), log)
	return nil
}

func (ix *Indexer) clearReorg(contract string) {
	ix.mu.Lock()
	delete(ix.reorgued, contract)
	ix.mu.Unlock()
}

func (ix *Indexer) publishChange(ctx context.Context, assetID string, change domain.ChangeType, log *slog.Logger) {
	// Invalidate before publishing so a subscriber that rebuilds on the
	// signal cannot re-cache the stale snapshot.
	if ix.cache != nil {
		if err := ix.cache.Invalidate(ctx, assetID); err != nil {
			log.Warn("book cache invalidate failed", "asset_id", assetID, "error", err)
		}
	}
	if ix.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.BookChange{AssetID: assetID, ChangeType: change})
	if err != nil {
		return
	}
	if err := ix.bus.Publish(ctx, domain.BookChannel(assetID), payload); err != nil {
		log.Warn("publish book change failed", "error", err)
	}
}

func (ix *Indexer) reportIncident(ctx context.Context, inc *domain.Incident, log *slog.Logger) {
	if inc == nil {
		return
	}
	log.Warn("event quarantined",
		"kind", inc.Kind, "order_id", inc.OrderID, "tx", inc.TxHash, "detail", inc.Detail)
	if ix.audit != nil {
		_ = ix.audit.Log(ctx, "quarantine", map[string]any{
			"contract": inc.Contract,
			"order_id": inc.OrderID,
			"tx_hash":  inc.TxHash,
			"detail":   inc.Detail,
		})
	}
	ix.alert(ctx, "quarantine", "Event quarantined",
		fmt.Sprintf("%s order %d tx %s: %s", inc.Contract, inc.OrderID, inc.TxHash, inc.Detail), log)
}

// alert rate-limits operator notifications to one per event type per minute
// per contract stream so a burst of bad events does not flood the channel.
func (ix *Indexer) alert(ctx context.Context, event, title, message string, log *slog.Logger) {
	if ix.alerter == nil {
		return
	}
	ix.mu.Lock()
	last := ix.lastAlerted[event]
	now := time.Now()
	if now.Sub(last) < time.Minute {
		ix.mu.Unlock()
		return
	}
	ix.lastAlerted[event] = now
	ix.mu.Unlock()

	if err := ix.alerter.Notify(ctx, event, title, message); err != nil {
		log.Warn("operator alert failed", "event", event, "error", err)
	}
}
