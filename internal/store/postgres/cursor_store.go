package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brixmarket/syncengine/internal/domain"
)

// CursorStore implements domain.CursorStore using PostgreSQL. During normal
// indexing the Applier advances cursors inside the event transaction; Put
// exists for operator resets after reconciliation.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a new CursorStore backed by the given connection pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the cursor for one contract.
func (s *CursorStore) Get(ctx context.Context, contract string) (domain.EventCursor, error) {
	var cur domain.EventCursor
	var logIdx int32
	err := s.pool.QueryRow(ctx,
		`SELECT contract, block_number, log_index, block_hash
		 FROM event_cursors WHERE contract = $1`, strings.ToLower(contract),
	).Scan(&cur.Contract, &cur.Position.BlockNumber, &logIdx, &cur.BlockHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EventCursor{}, domain.ErrNotFound
		}
		return domain.EventCursor{}, fmt.Errorf("postgres: get cursor %s: %w", contract, err)
	}
	cur.Position.LogIndex = uint(logIdx)
	return cur, nil
}

// Put upserts the cursor row for one contract.
func (s *CursorStore) Put(ctx context.Context, cur domain.EventCursor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_cursors (contract, block_number, log_index, block_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (contract) DO UPDATE
		 SET block_number = EXCLUDED.block_number,
		     log_index = EXCLUDED.log_index,
		     block_hash = EXCLUDED.block_hash`,
		strings.ToLower(cur.Contract), cur.Position.BlockNumber, int32(cur.Position.LogIndex), cur.BlockHash)
	if err != nil {
		return fmt.Errorf("postgres: put cursor %s: %w", cur.Contract, err)
	}
	return nil
}

// List returns every contract's cursor.
func (s *CursorStore) List(ctx context.Context) ([]domain.EventCursor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT contract, block_number, log_index, block_hash
		 FROM event_cursors ORDER BY contract`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cursors: %w", err)
	}
	defer rows.Close()

	var out []domain.EventCursor
	for rows.Next() {
		var cur domain.EventCursor
		var logIdx int32
		if err := rows.Scan(&cur.Contract, &cur.Position.BlockNumber, &logIdx, &cur.BlockHash); err != nil {
			return nil, fmt.Errorf("postgres: scan cursor: %w", err)
		}
		cur.Position.LogIndex = uint(logIdx)
		out = append(out, cur)
	}
	return out, rows.Err()
}
