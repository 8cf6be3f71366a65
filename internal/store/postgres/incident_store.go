package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brixmarket/syncengine/internal/domain"
)

// IncidentStore implements domain.IncidentStore using PostgreSQL.
type IncidentStore struct {
	pool *pgxpool.Pool
}

// NewIncidentStore creates a new IncidentStore backed by the given connection pool.
func NewIncidentStore(pool *pgxpool.Pool) *IncidentStore {
	return &IncidentStore{pool: pool}
}

// Create inserts a new incident.
func (s *IncidentStore) Create(ctx context.Context, inc domain.Incident) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, kind, contract, asset_id, order_id, tx_hash, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inc.ID, string(inc.Kind), inc.Contract, inc.AssetID, inc.OrderID, inc.TxHash, inc.Detail)
	if err != nil {
		return fmt.Errorf("postgres: create incident %s: %w", inc.ID, err)
	}
	return nil
}

// Resolve marks an incident as handled.
func (s *IncidentStore) Resolve(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: resolve incident %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns unresolved incidents, newest first.
func (s *IncidentStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Incident, error) {
	query := `SELECT id, kind, contract, asset_id, order_id, tx_hash, detail, resolved, created_at
		FROM incidents WHERE NOT resolved ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list open incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		var kind string
		if err := rows.Scan(&inc.ID, &kind, &inc.Contract, &inc.AssetID,
			&inc.OrderID, &inc.TxHash, &inc.Detail, &inc.Resolved, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan incident: %w", err)
		}
		inc.Kind = domain.IncidentKind(kind)
		out = append(out, inc)
	}
	return out, rows.Err()
}
