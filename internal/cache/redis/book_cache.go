package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brixmarket/syncengine/internal/domain"
)

// bookTTL bounds staleness when invalidation signals are missed.
const bookTTL = 30 * time.Second

// BookCache implements domain.BookCache using JSON-serialized snapshots.
//
// Key schema:
//
//	book:{assetID} - string value containing the JSON snapshot
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(assetID string) string { return "book:" + assetID }

// SetSnapshot stores an asset's snapshot with a short TTL.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", snap.AssetID, err)
	}
	if err := bc.rdb.Set(ctx, bookKey(snap.AssetID), data, bookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", snap.AssetID, err)
	}
	return nil
}

// GetSnapshot retrieves an asset's cached snapshot. It returns
// domain.ErrNotFound when no snapshot is cached.
func (bc *BookCache) GetSnapshot(ctx context.Context, assetID string) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, bookKey(assetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: %w", assetID, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: unmarshal book %s: %w", assetID, err)
	}
	return snap, nil
}

// Invalidate drops an asset's cached snapshot.
func (bc *BookCache) Invalidate(ctx context.Context, assetID string) error {
	if err := bc.rdb.Del(ctx, bookKey(assetID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate book %s: %w", assetID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
