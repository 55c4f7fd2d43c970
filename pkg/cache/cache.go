// Package cache stores raw search responses with a TTL.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented key/value store with expiry. A miss is reported
// with ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
