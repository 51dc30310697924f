// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/replication"
)

type Handler struct {
	StartReplicationFn  func(context.Context, *cdc.Position) error
	ReceiveMessageFn    func(context.Context, uint64) (*replication.Message, error)
	ResetConnectionFn   func(context.Context) error
	GetReplicationLagFn func(context.Context) (int64, error)
	CloseFn             func() error
	ReceiveMessageCalls uint64
	ResetCalls          uint64
}

func (m *Handler) StartReplication(ctx context.Context, from *cdc.Position) error {
	return m.StartReplicationFn(ctx, from)
}

func (m *Handler) ReceiveMessage(ctx context.Context) (*replication.Message, error) {
	i := atomic.AddUint64(&m.ReceiveMessageCalls, 1)
	return m.ReceiveMessageFn(ctx, i)
}

func (m *Handler) ResetConnection(ctx context.Context) error {
	atomic.AddUint64(&m.ResetCalls, 1)
	return m.ResetConnectionFn(ctx)
}

func (m *Handler) GetReplicationLag(ctx context.Context) (int64, error) {
	return m.GetReplicationLagFn(ctx)
}

func (m *Handler) Close() error {
	if m.CloseFn == nil {
		return nil
	}
	return m.CloseFn()
}

func (m *Handler) GetReceiveMessageCalls() uint64 {
	return atomic.LoadUint64(&m.ReceiveMessageCalls)
}

func (m *Handler) GetResetCalls() uint64 {
	return atomic.LoadUint64(&m.ResetCalls)
}
