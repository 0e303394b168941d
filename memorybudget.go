package dwarfs

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// MemoryBudget is the process-wide credit-based throttle spec section 5
// calls for: it bounds simultaneous compressor working-sets and output
// buffers. Producers request a credit sized by a compressor's
// EstimateMemoryUsage and release it when the buffer is handed off.
//
// Grounded on golang.org/x/sync/semaphore's weighted semaphore, the same
// bounded-concurrency primitive distr1/distri depends on for scheduling
// work; the teacher has no analogous mechanism since SquashFS writing is
// single-threaded.
type MemoryBudget struct {
	sem *semaphore.Weighted
	max int64
}

// NewMemoryBudget creates a budget that allows at most maxBytes of
// outstanding credit at any time. A non-positive maxBytes disables the
// throttle (every Acquire succeeds immediately).
func NewMemoryBudget(maxBytes int64) *MemoryBudget {
	if maxBytes <= 0 {
		maxBytes = int64(1) << 62
	}
	return &MemoryBudget{sem: semaphore.NewWeighted(maxBytes), max: maxBytes}
}

// Acquire blocks until n bytes of credit are available, or ctx is done.
func (b *MemoryBudget) Acquire(ctx context.Context, n int64) error {
	if n > b.max {
		n = b.max
	}
	return b.sem.Acquire(ctx, n)
}

// TryAcquire attempts to acquire n bytes of credit without blocking.
func (b *MemoryBudget) TryAcquire(n int64) bool {
	if n > b.max {
		n = b.max
	}
	return b.sem.TryAcquire(n)
}

// Release returns n bytes of credit to the budget.
func (b *MemoryBudget) Release(n int64) {
	if n > b.max {
		n = b.max
	}
	b.sem.Release(n)
}
