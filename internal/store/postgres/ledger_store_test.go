package postgres

import (
	"testing"

	"github.com/brixmarket/syncengine/internal/archive"
)

// The ledger is append-only: SumWallet folds the full entry history, so a
// store that can drop old rows would silently corrupt Portfolio and Locked
// for any wallet with pre-cutoff activity. Guard against the ledger store
// growing a pruning method and being picked up by the archive job.
func TestLedgerStoreExposesNoPruning(t *testing.T) {
	var store any = NewLedgerStore(nil)
	if _, ok := store.(archive.Pruner); ok {
		t.Fatal("ledger store satisfies archive.Pruner; ledger rows must never be deleted")
	}
}
