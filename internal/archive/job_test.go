package archive

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

type fakeArchiver struct {
	cutoffs []time.Time
	calls   int
}

func (f *fakeArchiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	f.calls++
	return 1, nil
}

func (f *fakeArchiver) ArchiveLedger(ctx context.Context, before time.Time) (int64, error) {
	f.calls++
	return 2, nil
}

func (f *fakeArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	f.calls++
	return 0, nil
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceArchivesAllKinds(t *testing.T) {
	arch := &fakeArchiver{}
	job, err := New(arch, nil, 30*24*time.Hour, time.Hour, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Unix(1_700_000_000, 0).UTC()
	job.now = func() time.Time { return now }

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if arch.calls != 3 {
		t.Errorf("archiver calls = %d, want 3", arch.calls)
	}
	want := now.Add(-30 * 24 * time.Hour)
	if len(arch.cutoffs) != 1 || !arch.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", arch.cutoffs, want)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	arch := &fakeArchiver{}
	lock := &fakeLock{held: true}
	job, err := New(arch, lock, 24*time.Hour, time.Hour, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce with held lock: %v", err)
	}
	if arch.calls != 0 {
		t.Errorf("archiver calls = %d, want 0 when lock held", arch.calls)
	}
}

func TestRunOnceReleasesLock(t *testing.T) {
	arch := &fakeArchiver{}
	lock := &fakeLock{}
	job, err := New(arch, lock, 24*time.Hour, time.Hour, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if lock.acquired != 1 || lock.released != 1 {
		t.Errorf("lock acquired/released = %d/%d, want 1/1", lock.acquired, lock.released)
	}
}

type fakePruner struct {
	cutoffs []time.Time
	fail    bool
}

func (p *fakePruner) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if p.fail {
		return 0, context.DeadlineExceeded
	}
	p.cutoffs = append(p.cutoffs, before)
	return 5, nil
}

func TestRunOncePrunesAfterArchive(t *testing.T) {
	arch := &fakeArchiver{}
	pr := &fakePruner{}
	job, err := New(arch, nil, 24*time.Hour, time.Hour, discard(), WithPruners(pr))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Unix(1_700_000_000, 0).UTC()
	job.now = func() time.Time { return now }

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := now.Add(-24 * time.Hour)
	if len(pr.cutoffs) != 1 || !pr.cutoffs[0].Equal(want) {
		t.Errorf("prune cutoffs = %v, want one at %v", pr.cutoffs, want)
	}
}

func TestRunOnceWithoutPrunersDeletesNothing(t *testing.T) {
	arch := &fakeArchiver{}
	job, err := New(arch, nil, 24*time.Hour, time.Hour, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if arch.calls != 3 {
		t.Errorf("archiver calls = %d, want 3", arch.calls)
	}
}

func TestNewRejectsBadRetention(t *testing.T) {
	if _, err := New(&fakeArchiver{}, nil, 0, time.Hour, discard()); err == nil {
		t.Fatal("want error for zero retention")
	}
}
