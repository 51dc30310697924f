// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xataio/mystream/pkg/backoff"
	backoffmocks "github.com/xataio/mystream/pkg/backoff/mocks"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer/memory"
	"github.com/xataio/mystream/pkg/cdc/replication"
	"github.com/xataio/mystream/pkg/cdc/replication/mocks"
	"github.com/xataio/mystream/pkg/cdc/sink"
)

var errTest = errors.New("oh noes")

func testPos(offset uint64) cdc.Position {
	return cdc.Position{File: "mysql-bin.000001", Offset: offset, TxOffset: offset}
}

func userRow(offset uint64, id string) *replication.Message {
	return &replication.Message{
		Position:   testPos(offset),
		Schema:     "space_cloud_default",
		Table:      "t_user",
		Operation:  cdc.OperationInsert,
		Row:        map[string]any{"id": id, "username": "user" + id},
		PrimaryKey: []string{"id"},
	}
}

// fakeBinlog serves the same row changes to every handler it opens,
// starting right after the requested position.
type fakeBinlog struct {
	msgs []*replication.Message
	// failAfter makes the first stream fail after that many messages
	failAfter int
	// failSignal, when set, delays that failure until it is closed
	failSignal <-chan struct{}
	// block keeps the stream open once all the messages have been read
	block   bool
	openErr error
	opens   atomic.Uint64
}

func (b *fakeBinlog) open(context.Context) (replication.Handler, error) {
	attempt := b.opens.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}

	var pending []*replication.Message
	return &mocks.Handler{
		StartReplicationFn: func(_ context.Context, from *cdc.Position) error {
			for _, msg := range b.msgs {
				if from == nil || from.Less(msg.Position) {
					pending = append(pending, msg)
				}
			}
			return nil
		},
		ReceiveMessageFn: func(ctx context.Context, i uint64) (*replication.Message, error) {
			if attempt == 1 && b.failAfter > 0 && int(i) > b.failAfter {
				if b.failSignal != nil {
					select {
					case <-b.failSignal:
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				return nil, errTest
			}
			if int(i) > len(pending) {
				if b.block {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				return nil, replication.ErrStreamClosed
			}
			return pending[i-1], nil
		},
	}, nil
}

func (b *fakeBinlog) getOpens() uint64 {
	return b.opens.Load()
}

// recordingApplier keeps the highest position applied per document.
type recordingApplier struct {
	mu      sync.Mutex
	applied map[string]cdc.Position
	calls   atomic.Uint64
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{applied: map[string]cdc.Position{}}
}

func (a *recordingApplier) Apply(_ context.Context, batch []*cdc.Event) (*sink.CommitResult, error) {
	a.calls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	res := &sink.CommitResult{}
	for _, e := range batch {
		key := e.SourceID + "/" + e.Key
		if stored, found := a.applied[key]; found && !stored.Less(e.Position) {
			res.Stale++
			continue
		}
		a.applied[key] = e.Position
		res.Applied++
	}
	return res, nil
}

func (a *recordingApplier) get() map[string]cdc.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]cdc.Position, len(a.applied))
	for k, v := range a.applied {
		out[k] = v
	}
	return out
}

type mockIndex struct {
	ensureIndexFn func(ctx context.Context) error
}

func (m *mockIndex) EnsureIndex(ctx context.Context) error {
	if m.ensureIndexFn == nil {
		return nil
	}
	return m.ensureIndexFn(ctx)
}

// flakyCheckpoints fails the first commits.
type flakyCheckpoints struct {
	*memory.Store
	failures atomic.Int32
}

func (f *flakyCheckpoints) Commit(ctx context.Context, sourceID string, position cdc.Position) error {
	if f.failures.Add(-1) >= 0 {
		return errTest
	}
	return f.Store.Commit(ctx, sourceID, position)
}

// signalingCheckpoints closes committed after the first successful commit.
type signalingCheckpoints struct {
	*memory.Store
	committed chan struct{}
	once      sync.Once
}

func newSignalingCheckpoints() *signalingCheckpoints {
	return &signalingCheckpoints{Store: memory.New(), committed: make(chan struct{})}
}

func (s *signalingCheckpoints) Commit(ctx context.Context, sourceID string, position cdc.Position) error {
	if err := s.Store.Commit(ctx, sourceID, position); err != nil {
		return err
	}
	s.once.Do(func() { close(s.committed) })
	return nil
}

// recordingBackoff retries without sleeping and records every wait it would
// have made.
type recordingBackoff struct {
	maxRetries int
	waits      atomic.Int64
}

func (r *recordingBackoff) provider(context.Context) backoff.Backoff {
	return &backoffmocks.Backoff{
		RetryNotifyFn: func(op backoff.Operation, notify backoff.Notify) error {
			for retries := 0; ; retries++ {
				err := op()
				if err == nil || errors.Is(err, backoff.ErrPermanent) || retries >= r.maxRetries {
					return err
				}
				r.waits.Add(1)
				if notify != nil {
					notify(err, time.Millisecond)
				}
			}
		},
	}
}

type mockStatusProvider struct {
	statuses []SourceStatus
}

func (m *mockStatusProvider) Status() []SourceStatus {
	return m.statuses
}
