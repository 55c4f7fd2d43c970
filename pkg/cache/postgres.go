package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-research/pkg/database"
)

// PostgresStore keeps entries in the search_cache table created by
// database.InitSchema.
type PostgresStore struct {
	pool database.DBPool
	now  func() time.Time
}

func NewPostgresStore(pool database.DBPool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, "SELECT value FROM search_cache WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read search_cache: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := s.now().Add(ttl)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx, "INSERT INTO search_cache (key, value, expires_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at", key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write search_cache: %w", err)
	}
	return nil
}
