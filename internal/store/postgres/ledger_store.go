package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brixmarket/syncengine/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. The ledger is
// append-only; entries are written by the Applier (or seeded for primary
// market purchases) and never mutated or deleted. Wallet balances and locks
// are folds over the full entry history, so the store exposes no pruning.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// SumWallet folds a wallet's entries for one asset into balance aggregates.
// The fold runs in Go, not SQL, so the sign convention lives in exactly one
// place (domain.BalanceSums.Accumulate).
func (s *LedgerStore) SumWallet(ctx context.Context, wallet, assetID string) (domain.BalanceSums, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT amount, source FROM ledger_entries
		 WHERE LOWER(wallet_address) = LOWER($1) AND asset_id = $2`, wallet, assetID)
	if err != nil {
		return domain.BalanceSums{}, fmt.Errorf("postgres: sum wallet ledger: %w", err)
	}
	defer rows.Close()

	var sums domain.BalanceSums
	for rows.Next() {
		var e domain.LedgerEntry
		var source string
		if err := rows.Scan(&e.Amount, &source); err != nil {
			return domain.BalanceSums{}, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Source = domain.LedgerSource(source)
		sums.Accumulate(e)
	}
	if err := rows.Err(); err != nil {
		return domain.BalanceSums{}, fmt.Errorf("postgres: sum wallet ledger rows: %w", err)
	}
	return sums, nil
}

// ListByWallet returns a wallet's ledger entries for one asset, newest first.
func (s *LedgerStore) ListByWallet(ctx context.Context, wallet, assetID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `SELECT id, wallet_address, asset_id, amount, source,
			COALESCE(order_id, 0), COALESCE(tx_hash, ''), COALESCE(log_index, 0),
			COALESCE(block_number, 0), block_time, created_at
		FROM ledger_entries
		WHERE LOWER(wallet_address) = LOWER($1) AND asset_id = $2
		ORDER BY id DESC`
	args := []any{wallet, assetID}
	argIdx := 3

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger by wallet: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var source string
		var logIdx int32
		var blockTime *time.Time
		if err := rows.Scan(
			&e.ID, &e.WalletAddress, &e.AssetID, &e.Amount, &source,
			&e.OrderID, &e.TxHash, &logIdx, &e.BlockNumber, &blockTime, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Source = domain.LedgerSource(source)
		e.LogIndex = uint(logIdx)
		if blockTime != nil {
			e.BlockTime = *blockTime
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger rows: %w", err)
	}
	return entries, nil
}

// ListBefore returns all entries with a block time strictly before the given
// time (for archiving). Entries without chain provenance are kept.
func (s *LedgerStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, wallet_address, asset_id, amount, source,
			COALESCE(order_id, 0), COALESCE(tx_hash, ''), COALESCE(log_index, 0),
			COALESCE(block_number, 0), block_time, created_at
		 FROM ledger_entries WHERE block_time < $1 ORDER BY id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger before: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var source string
		var logIdx int32
		var blockTime *time.Time
		if err := rows.Scan(
			&e.ID, &e.WalletAddress, &e.AssetID, &e.Amount, &source,
			&e.OrderID, &e.TxHash, &logIdx, &e.BlockNumber, &blockTime, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Source = domain.LedgerSource(source)
		e.LogIndex = uint(logIdx)
		if blockTime != nil {
			e.BlockTime = *blockTime
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
