package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingsync/internal/domain"
)

var _ domain.OfflineCache = (*OfflineCache)(nil)

// OfflineCache is the sqlite-backed durable cache.
type OfflineCache struct {
	db *DB
}

func NewOfflineCache(db *DB) *OfflineCache {
	return &OfflineCache{db: db}
}

func (c *OfflineCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM offline_cache WHERE cache_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cache entry %s: %w", key, err)
	}
	return payload, true, nil
}

// Set upserts the entry. Overwriting keeps the original insertion position.
func (c *OfflineCache) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC()
	query := `INSERT INTO offline_cache (cache_key, payload, created_at, updated_at)
              VALUES (?, ?, ?, ?)
              ON CONFLICT(cache_key) DO UPDATE SET
                  payload = excluded.payload,
                  updated_at = excluded.updated_at`
	if _, err := c.db.ExecContext(ctx, query, key, value, now, now); err != nil {
		return fmt.Errorf("set cache entry %s: %w", key, err)
	}
	return nil
}

func (c *OfflineCache) Remove(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM offline_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("remove cache entry %s: %w", key, err)
	}
	return nil
}

// List returns entries whose key starts with prefix in insertion order.
func (c *OfflineCache) List(ctx context.Context, prefix string) ([]domain.CacheEntry, error) {
	query := `SELECT cache_key, payload FROM offline_cache
              WHERE cache_key LIKE ? ESCAPE '\'
              ORDER BY rowid ASC`
	rows, err := c.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of cached entries.
func (c *OfflineCache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
