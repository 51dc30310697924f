// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"
)

type Slots struct {
	AcquireFn    func(context.Context) error
	TryAcquireFn func() bool
	SizeFn       func() int64
	releaseCalls atomic.Uint64
}

func (m *Slots) Acquire(ctx context.Context) error {
	return m.AcquireFn(ctx)
}

func (m *Slots) TryAcquire() bool {
	return m.TryAcquireFn()
}

func (m *Slots) Release() {
	m.releaseCalls.Add(1)
}

func (m *Slots) Size() int64 {
	if m.SizeFn == nil {
		return 1
	}
	return m.SizeFn()
}

func (m *Slots) GetReleaseCalls() uint64 {
	return m.releaseCalls.Load()
}
