// Package archive runs the periodic cold-storage job: aged trades, ledger
// entries and audit rows are serialized to object storage on a schedule.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// lockTTL bounds how long a crashed replica can block the job.
const lockTTL = 10 * time.Minute

// Pruner deletes rows older than a cutoff, returning the number removed.
// The stores' DeleteBefore methods satisfy it.
type Pruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Job periodically archives aged rows. When a lock manager is configured
// the job is a cluster singleton: only one replica archives per cycle.
type Job struct {
	archiver  domain.Archiver
	lock      domain.LockManager // optional
	pruners   []Pruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	now func() time.Time
}

// Option configures optional Job behavior.
type Option func(*Job)

// WithPruners deletes archived rows from the database after every fully
// successful cycle. Without pruners the job only copies; deletion stays a
// separate operational step.
func WithPruners(pruners ...Pruner) Option {
	return func(j *Job) { j.pruners = pruners }
}

// New creates an archive Job. lock may be nil for single-replica deployments.
func New(archiver domain.Archiver, lock domain.LockManager, retention, interval time.Duration, logger *slog.Logger, opts ...Option) (*Job, error) {
	if archiver == nil {
		return nil, errors.New("archive: archiver is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("archive: retention must be positive, got %s", retention)
	}
	if interval <= 0 {
		interval = time.Hour
	}
	j := &Job{
		archiver:  archiver,
		lock:      lock,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "archive"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run blocks until ctx is cancelled, archiving once per interval.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			j.logger.Error("archive cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single archive cycle. A held lock is not an error;
// another replica owns this cycle.
func (j *Job) RunOnce(ctx context.Context) error {
	if j.lock != nil {
		unlock, err := j.lock.Acquire(ctx, "archive", lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			j.logger.Debug("archive cycle skipped, lock held elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := j.now().UTC().Add(-j.retention)

	trades, err := j.archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: trades: %w", err)
	}
	ledger, err := j.archiver.ArchiveLedger(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: ledger: %w", err)
	}
	audit, err := j.archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: audit: %w", err)
	}

	if trades+ledger+audit > 0 {
		j.logger.Info("archive cycle complete",
			"cutoff", cutoff.Format(time.RFC3339),
			"trades", trades,
			"ledger", ledger,
			"audit", audit)
	}

	// Prune only after every kind archived cleanly.
	var pruned int64
	for _, p := range j.pruners {
		n, err := p.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive: prune: %w", err)
		}
		pruned += n
	}
	if pruned > 0 {
		j.logger.Info("pruned archived rows", "rows", pruned)
	}
	return nil
}
