// Package resilience provides concurrency-control primitives for the
// dispatch queue.
package resilience

import "context"

// Semaphore is a counting semaphore bounding concurrent operations.
// Acquire suspends only the calling goroutine and honors context
// cancellation, so an external deadline unblocks waiting workers promptly.
type Semaphore struct {
	permits chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity.
// Capacities below one are clamped to one.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{permits: make(chan struct{}, capacity)}
}

// Acquire obtains a permit, blocking until one is available or the context
// is cancelled. A context that is already done always fails, even when a
// permit is free.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire obtains a permit without blocking. Returns false when the
// semaphore is at capacity.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a permit. Releasing more than was acquired is a no-op.
func (s *Semaphore) Release() {
	select {
	case <-s.permits:
	default:
	}
}

// Current returns the number of permits currently held.
func (s *Semaphore) Current() int {
	return len(s.permits)
}

// Capacity returns the semaphore capacity.
func (s *Semaphore) Capacity() int {
	return cap(s.permits)
}
