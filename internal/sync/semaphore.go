// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Slots bounds the number of operations in flight. Every successful Acquire
// or TryAcquire must be paired with a Release.
type Slots interface {
	Acquire(ctx context.Context) error
	TryAcquire() bool
	Release()
	Size() int64
}

type weightedSlots struct {
	sem  *semaphore.Weighted
	size int64
}

// NewSlots returns a limiter of size concurrent holders. A size lower than
// one is raised to one.
func NewSlots(size int64) Slots {
	size = max(size, 1)
	return &weightedSlots{
		sem:  semaphore.NewWeighted(size),
		size: size,
	}
}

func (s *weightedSlots) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

func (s *weightedSlots) TryAcquire() bool {
	return s.sem.TryAcquire(1)
}

func (s *weightedSlots) Release() {
	s.sem.Release(1)
}

func (s *weightedSlots) Size() int64 {
	return s.size
}
