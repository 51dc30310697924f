// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"

	"github.com/xataio/mystream/internal/postgres"
)

type Querier struct {
	QueryFn    func(ctx context.Context, query string, args ...any) (postgres.Rows, error)
	QueryRowFn func(ctx context.Context, dest []any, query string, args ...any) error
	ExecFn     func(ctx context.Context, i uint64, query string, args ...any) (postgres.CommandTag, error)
	PingFn     func(ctx context.Context) error
	CloseFn    func(ctx context.Context) error
	execCalls  uint64
}

func (m *Querier) Query(ctx context.Context, query string, args ...any) (postgres.Rows, error) {
	return m.QueryFn(ctx, query, args...)
}

func (m *Querier) QueryRow(ctx context.Context, dest []any, query string, args ...any) error {
	return m.QueryRowFn(ctx, dest, query, args...)
}

func (m *Querier) Exec(ctx context.Context, query string, args ...any) (postgres.CommandTag, error) {
	i := atomic.AddUint64(&m.execCalls, 1)
	return m.ExecFn(ctx, i, query, args...)
}

func (m *Querier) Ping(ctx context.Context) error {
	if m.PingFn == nil {
		return nil
	}
	return m.PingFn(ctx)
}

func (m *Querier) Close(ctx context.Context) error {
	if m.CloseFn == nil {
		return nil
	}
	return m.CloseFn(ctx)
}

func (m *Querier) GetExecCalls() uint64 {
	return atomic.LoadUint64(&m.execCalls)
}
