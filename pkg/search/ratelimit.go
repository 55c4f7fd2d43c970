package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedSearcher paces calls to an underlying provider with a token
// bucket and pauses everyone after the provider answers 429.
type RateLimitedSearcher struct {
	next    Searcher
	limiter *rate.Limiter
	backoff time.Duration

	mu      sync.Mutex
	retryAt time.Time
}

// RateLimited wraps next with a limiter of rps requests per second.
// rps <= 0 disables the token bucket but keeps the 429 backoff.
func RateLimited(next Searcher, rps float64, burst int) *RateLimitedSearcher {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSearcher{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		backoff: 5 * time.Second,
	}
}

func (r *RateLimitedSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	results, err := r.next.Search(ctx, query, limit)

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RateLimited() {
		r.recordRateLimit()
	}
	return results, err
}

func (r *RateLimitedSearcher) wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	wait := time.Until(retryAt)
	if wait <= 0 && r.limiter.Tokens() >= 1 {
		return r.limiter.Wait(ctx)
	}
	return Pause(ctx, func() error {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		return r.limiter.Wait(ctx)
	})
}

func (r *RateLimitedSearcher) recordRateLimit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := time.Now().Add(r.backoff)
	if next.After(r.retryAt) {
		r.retryAt = next
	}
}
