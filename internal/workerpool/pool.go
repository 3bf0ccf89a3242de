// Package workerpool bounds the number of analysis pipelines running
// concurrently in cmd/codecrowd serve, following specvital-worker's
// semaphore.Weighted-gated cloneSem pattern generalized from "concurrent
// clones" to "concurrent pipeline runs".
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent execution of Submit'd work to size permits.
type Pool struct {
	sem *semaphore.Weighted
}

func New(size int64) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Submit blocks until a permit is available (or ctx is cancelled), runs fn,
// and releases the permit on return.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	fn(ctx)
	return nil
}

// TryAcquire reports whether a permit is immediately available without
// blocking, consuming it if so; the caller must call Release when done.
func (p *Pool) TryAcquire() bool {
	return p.sem.TryAcquire(1)
}

// Release returns a permit acquired via TryAcquire.
func (p *Pool) Release() {
	p.sem.Release(1)
}
