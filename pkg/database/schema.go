package database

import (
	"context"
	"fmt"
)

const createSearchCacheTable = `CREATE TABLE IF NOT EXISTS search_cache (key TEXT PRIMARY KEY, value BYTEA NOT NULL, expires_at TIMESTAMP WITH TIME ZONE, created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW())`

const createSearchCacheIndex = `CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at)`

// InitSchema creates the search response cache table.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, createSearchCacheTable); err != nil {
		return fmt.Errorf("failed to create search_cache table: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, createSearchCacheIndex); err != nil {
		return fmt.Errorf("failed to create index on search_cache: %w", err)
	}

	return nil
}

// PurgeExpired deletes cache rows whose TTL has passed.
func (db *PostgresDB) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, "DELETE FROM search_cache WHERE expires_at IS NOT NULL AND expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to purge search_cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
