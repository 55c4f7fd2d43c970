package search

import (
	"context"
	"time"
)

// Pauser is installed in a search context by callers that hold a scarce
// slot (a concurrency limiter, a per-call timer) around Search. Pause hands
// the slot back while wait runs and takes it again before returning.
type Pauser interface {
	Pause(ctx context.Context, wait func() error) error
}

type pauserKey struct{}

// WithPauser returns a context whose searches release p while they wait on
// rate limits or 429 backoff.
func WithPauser(ctx context.Context, p Pauser) context.Context {
	return context.WithValue(ctx, pauserKey{}, p)
}

// Pause runs wait through the context's Pauser, or directly when there is none.
func Pause(ctx context.Context, wait func() error) error {
	if p, ok := ctx.Value(pauserKey{}).(Pauser); ok && p != nil {
		return p.Pause(ctx, wait)
	}
	return wait()
}

// Sleep waits for d or until ctx is done, releasing the caller's slot meanwhile.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return Pause(ctx, func() error { return sleep(ctx, d) })
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
