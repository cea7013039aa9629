package resilience

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of concurrent calls to one dependency using a
// weighted semaphore. Waiting for a slot honours the caller's deadline, so
// the wait counts against the same timeout as the call itself.
type Limiter struct {
	sem *semaphore.Weighted
	max int64
}

// NewLimiter creates a Limiter that allows at most limit concurrent calls.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(limit)), max: int64(limit)}
}

// Run acquires a slot, runs fn, and releases the slot.
// If the limiter is nil, fn is executed directly.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	if l == nil || l.sem == nil {
		return fn()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for slot: %w", err)
	}
	defer l.sem.Release(1)
	return fn()
}

// Limit returns the configured concurrency.
func (l *Limiter) Limit() int {
	if l == nil {
		return 0
	}
	return int(l.max)
}
