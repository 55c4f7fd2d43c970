// Package search runs web searches against hosted search APIs and decorates
// them with page enrichment, rate limiting and response caching.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultLimit is the number of results requested when the caller passes 0.
const DefaultLimit = 5

// Result is one retrieved page.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Searcher issues a single web search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, limit int) ([]Result, error)

func (f SearcherFunc) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return f(ctx, query, limit)
}

// HTTPError is returned when a provider answers with a non-200 status.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s http %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Body)
}

// RateLimited reports whether the provider rejected the call with 429.
func (e *HTTPError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// initialBackoff is the first delay after a 429; maxBackoff caps the doubling.
var (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// maxRateLimitRetries bounds how often a 429 is retried before giving up.
const maxRateLimitRetries = 4

// doWithBackoff sends the request built by newReq and retries on 429,
// doubling the delay each time. The caller owns the returned body.
func doWithBackoff(ctx context.Context, client *http.Client, provider string, newReq func() (*http.Request, error)) (*http.Response, error) {
	delay := initialBackoff
	for attempt := 0; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", provider, err)
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		httpErr := &HTTPError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}

		if !httpErr.RateLimited() || attempt >= maxRateLimitRetries {
			return nil, httpErr
		}

		if err := Sleep(ctx, delay); err != nil {
			return nil, err
		}
		if delay < maxBackoff {
			delay *= 2
		}
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
