package batch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many file reads and transform tasks run at once.
type Limiter interface {
	// Acquire blocks until a slot is free or ctx is done.
	Acquire(ctx context.Context) error
	// Release returns a slot taken by a successful Acquire.
	Release()
}

// NewLimiter returns a Limiter allowing n concurrent holders. n <= 0 means
// no bound.
func NewLimiter(n int) Limiter {
	if n <= 0 {
		return Unlimited{}
	}
	return &weighted{sem: semaphore.NewWeighted(int64(n))}
}

type weighted struct {
	sem *semaphore.Weighted
}

func (w *weighted) Acquire(ctx context.Context) error { return w.sem.Acquire(ctx, 1) }
func (w *weighted) Release()                          { w.sem.Release(1) }

// Unlimited never blocks, except to report a cancelled context.
type Unlimited struct{}

func (Unlimited) Acquire(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Release()                          {}
