// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
)

type Store struct {
	GetFn       func(ctx context.Context, sourceID string) (*cdc.Position, error)
	CommitFn    func(ctx context.Context, i uint64, sourceID string, position cdc.Position) error
	ListFn      func(ctx context.Context) ([]checkpointer.Record, error)
	CloseFn     func() error
	commitCalls uint64
}

func (m *Store) Get(ctx context.Context, sourceID string) (*cdc.Position, error) {
	return m.GetFn(ctx, sourceID)
}

func (m *Store) Commit(ctx context.Context, sourceID string, position cdc.Position) error {
	i := atomic.AddUint64(&m.commitCalls, 1)
	return m.CommitFn(ctx, i, sourceID, position)
}

func (m *Store) List(ctx context.Context) ([]checkpointer.Record, error) {
	return m.ListFn(ctx)
}

func (m *Store) Close() error {
	if m.CloseFn == nil {
		return nil
	}
	return m.CloseFn()
}

func (m *Store) GetCommitCalls() uint64 {
	return atomic.LoadUint64(&m.commitCalls)
}
