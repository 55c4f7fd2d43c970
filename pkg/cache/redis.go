package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "deep-research:"
}

// NewRedisStore creates a new Redis store
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "deep-research:"
	}

	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read from redis: %w", err)
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write to redis: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
