package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mikeboe/deep-research/pkg/search"
)

// Limiter bounds the number of provider calls in flight. A slot is held for
// one call attempt only, never while waiting on children or backing off.
type Limiter struct {
	sem *semaphore.Weighted
}

func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn while holding a slot. A positive timeout bounds the time fn
// spends holding it; the clock stops while fn is paused through
// search.Pause. A nil Limiter runs fn unbounded.
func (l *Limiter) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	s := &slot{limiter: l, timeout: timeout}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, func() { cancel(context.DeadlineExceeded) })
		defer s.timer.Stop()
	}

	err := fn(search.WithPauser(callCtx, s))
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(callCtx), context.DeadlineExceeded) {
		return fmt.Errorf("call exceeded %s: %w", timeout, context.DeadlineExceeded)
	}
	return err
}

// slot is one held limiter permit plus the attempt's timer.
type slot struct {
	limiter *Limiter
	timeout time.Duration
	timer   *time.Timer

	mu   sync.Mutex
	held bool
}

func (s *slot) acquire(ctx context.Context) error {
	if s.limiter != nil {
		if err := s.limiter.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	s.held = true
	return nil
}

func (s *slot) release() {
	if s.held && s.limiter != nil {
		s.limiter.sem.Release(1)
	}
	s.held = false
}

// Pause gives the permit back while wait runs. Once the timer has fired the
// attempt is over and Pause does not resume it.
func (s *slot) Pause(ctx context.Context, wait func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil && !s.timer.Stop() {
		return context.DeadlineExceeded
	}
	s.release()

	waitErr := wait()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	if s.timer != nil {
		s.timer.Reset(s.timeout)
	}
	return waitErr
}
