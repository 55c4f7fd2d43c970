package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikeboe/deep-research/pkg/cache"
)

// CachedSearcher serves repeated queries from a cache.Store. Cache failures
// are logged and never fail a search.
type CachedSearcher struct {
	next      Searcher
	store     cache.Store
	namespace string
	ttl       time.Duration
	Logger    *slog.Logger
}

// Cached wraps next. namespace usually names the provider so that results of
// different providers never collide.
func Cached(next Searcher, store cache.Store, namespace string, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{
		next:      next,
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		Logger:    slog.Default(),
	}
}

func (c *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	key := CacheKey(c.namespace, query, limit)

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.Logger.Warn("search cache read failed", "key", key, "error", err)
	} else if ok {
		var results []Result
		if err := json.Unmarshal(data, &results); err == nil {
			c.Logger.Debug("search cache hit", "query", query)
			return results, nil
		}
		c.Logger.Warn("search cache entry is corrupt", "key", key)
	}

	results, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return results, nil
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		c.Logger.Warn("failed to encode search results for cache", "error", err)
		return results, nil
	}
	if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
		c.Logger.Warn("search cache write failed", "key", key, "error", err)
	}
	return results, nil
}

// CacheKey is provider:limit:sha256(query).
func CacheKey(namespace, query string, limit int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:%d:%s", namespace, normalizeLimit(limit), hex.EncodeToString(sum[:]))
}
