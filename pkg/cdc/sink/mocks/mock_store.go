// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"

	"github.com/xataio/mystream/pkg/cdc/sink"
)

type Store struct {
	EnsureIndexFn   func(ctx context.Context) error
	SendDocumentsFn func(ctx context.Context, i uint64, docs []sink.Document) ([]sink.DocumentError, error)
	sendCalls       uint64
}

func (m *Store) EnsureIndex(ctx context.Context) error {
	if m.EnsureIndexFn == nil {
		return nil
	}
	return m.EnsureIndexFn(ctx)
}

func (m *Store) SendDocuments(ctx context.Context, docs []sink.Document) ([]sink.DocumentError, error) {
	i := atomic.AddUint64(&m.sendCalls, 1)
	return m.SendDocumentsFn(ctx, i, docs)
}

func (m *Store) GetSendCalls() uint64 {
	return atomic.LoadUint64(&m.sendCalls)
}
