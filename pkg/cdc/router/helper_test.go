// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/sink"
)

const testSource = "db1"

func newTestEvent(offset uint64) *cdc.Event {
	return &cdc.Event{
		SourceID:  testSource,
		Operation: cdc.OperationInsert,
		Key:       "k",
		Position:  testPos(offset),
	}
}

func testPos(offset uint64) cdc.Position {
	return cdc.Position{File: "mysql-bin.000001", Offset: offset, TxOffset: offset}
}

type mockApplier struct {
	applyFn func(ctx context.Context, i uint64, batch []*cdc.Event) (*sink.CommitResult, error)
	calls   uint64
}

func (m *mockApplier) Apply(ctx context.Context, batch []*cdc.Event) (*sink.CommitResult, error) {
	i := atomic.AddUint64(&m.calls, 1)
	return m.applyFn(ctx, i, batch)
}

func (m *mockApplier) getCalls() uint64 {
	return atomic.LoadUint64(&m.calls)
}

func applyAll(_ context.Context, _ uint64, batch []*cdc.Event) (*sink.CommitResult, error) {
	return &sink.CommitResult{Applied: len(batch)}, nil
}

type mockQuarantine struct {
	mu       sync.Mutex
	failures []sink.EventFailure
	err      error
}

func (m *mockQuarantine) Quarantine(_ context.Context, failures []sink.EventFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.failures = append(m.failures, failures...)
	return nil
}

func (m *mockQuarantine) Close() error { return nil }

func (m *mockQuarantine) get() []sink.EventFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

type commitRecorder struct {
	mu        sync.Mutex
	positions []cdc.Position
	stats     []BatchStats
}

func (c *commitRecorder) commitFn(_ context.Context, _ uint64, sourceID string, pos cdc.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = append(c.positions, pos)
	return nil
}

func (c *commitRecorder) hook(_ string, stats BatchStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = append(c.stats, stats)
}

func (c *commitRecorder) getPositions() []cdc.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cdc.Position{}, c.positions...)
}

func (c *commitRecorder) getStats() []BatchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BatchStats{}, c.stats...)
}

func noWaitBackoff(maxRetries uint) backoff.Provider {
	return func(ctx context.Context) backoff.Backoff {
		return backoff.NewConstantBackoff(ctx, &backoff.ConstantConfig{MaxRetries: maxRetries})
	}
}

func sendAll(events chan<- *cdc.Event, offsets ...uint64) {
	for _, o := range offsets {
		events <- newTestEvent(o)
	}
}
