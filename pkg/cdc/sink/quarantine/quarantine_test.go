// SPDX-License-Identifier: Apache-2.0

package quarantine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/internal/kafka"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/log"
)

var (
	testNow     = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	testFailure = sink.EventFailure{
		Event: &cdc.Event{
			SourceID:  "db1",
			Operation: cdc.OperationInsert,
			Key:       "42",
			Fields:    map[string]any{"username": "a"},
			Position:  cdc.Position{File: "mysql-bin.000003", Offset: 120, TxOffset: 100},
		},
		Severity: sink.SeverityRejected,
		Err:      errors.New("mapper_parsing_exception"),
	}
)

type mockWriter struct {
	writeFn func(ctx context.Context, msgs ...kafka.Message) error
	closed  bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.writeFn(ctx, msgs...)
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafka_Quarantine(t *testing.T) {
	t.Parallel()

	errTest := errors.New("oh noes")

	tests := []struct {
		name    string
		writeFn func(ctx context.Context, msgs ...kafka.Message) error

		wantErr error
	}{
		{
			name: "ok",
			writeFn: func(_ context.Context, msgs ...kafka.Message) error {
				if len(msgs) != 1 {
					return errors.New("writeFn: unexpected messages")
				}
				if string(msgs[0].Key) != "db1/42" {
					return errors.New("writeFn: unexpected key")
				}
				if msgs[0].Headers["source_db"] != "db1" || msgs[0].Headers["severity"] != "REJECTED" {
					return errors.New("writeFn: unexpected headers")
				}
				var r Record
				if err := json.Unmarshal(msgs[0].Value, &r); err != nil {
					return err
				}
				if r.SourceID != "db1" || r.Key != "42" || r.Severity != "REJECTED" ||
					r.Position != testFailure.Event.Position.String() || r.ID == "" ||
					!r.QuarantinedAt.Equal(testNow) || r.Error != "mapper_parsing_exception" {
					return errors.New("writeFn: unexpected record")
				}
				return nil
			},
		},
		{
			name: "write error",
			writeFn: func(context.Context, ...kafka.Message) error {
				return errTest
			},
			wantErr: errTest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := &mockWriter{writeFn: tc.writeFn}
			q := &Kafka{
				writer:    w,
				logger:    log.NewNoopLogger(),
				marshaler: json.Marshal,
				now:       func() time.Time { return testNow },
			}

			err := q.Quarantine(context.Background(), []sink.EventFailure{testFailure})
			require.ErrorIs(t, err, tc.wantErr)

			require.NoError(t, q.Close())
			require.True(t, w.closed)
		})
	}
}

func TestKafka_Quarantine_Empty(t *testing.T) {
	t.Parallel()

	q := &Kafka{
		writer: &mockWriter{writeFn: func(context.Context, ...kafka.Message) error {
			return errors.New("writeFn: should not be called")
		}},
		logger: log.NewNoopLogger(),
	}
	require.NoError(t, q.Quarantine(context.Background(), nil))
}

func TestLog_Quarantine(t *testing.T) {
	t.Parallel()

	q := NewLog(nil)
	require.NoError(t, q.Quarantine(context.Background(), []sink.EventFailure{testFailure, {Severity: sink.SeverityRejected}}))
	require.NoError(t, q.Close())
}
