// SPDX-License-Identifier: Apache-2.0

package retrier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/replication"
	"github.com/xataio/mystream/pkg/cdc/replication/mocks"
	"github.com/xataio/mystream/pkg/log"
)

func TestHandlerRetrier_ReceiveMessage(t *testing.T) {
	t.Parallel()

	retriableErr := errors.New("retriable error")
	testMsg := &replication.Message{
		Position:  cdc.Position{File: "mysql-bin.000001", Offset: 120, TxOffset: 4},
		Operation: cdc.OperationInsert,
	}

	tests := []struct {
		name    string
		handler *mocks.Handler

		wantMsg    *replication.Message
		wantErr    error
		wantResets uint64
	}{
		{
			name: "ok",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(context.Context, uint64) (*replication.Message, error) {
					return testMsg, nil
				},
			},

			wantMsg: testMsg,
		},
		{
			name: "retriable error then success",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(_ context.Context, i uint64) (*replication.Message, error) {
					switch i {
					case 1, 2:
						return nil, retriableErr
					case 3:
						return testMsg, nil
					default:
						return nil, fmt.Errorf("unexpected call to ReceiveMessage: %w", context.Canceled)
					}
				},
				ResetConnectionFn: func(context.Context) error { return nil },
			},

			wantMsg:    testMsg,
			wantResets: 2,
		},
		{
			name: "retriable error then permanent error",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(_ context.Context, i uint64) (*replication.Message, error) {
					require.Contains(t, []uint64{1, 2, 3}, i)
					switch i {
					case 1, 2:
						return nil, retriableErr
					default:
						return nil, context.Canceled
					}
				},
				ResetConnectionFn: func(context.Context) error { return nil },
			},

			wantErr:    context.Canceled,
			wantResets: 2,
		},
		{
			name: "retries exhausted",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(context.Context, uint64) (*replication.Message, error) {
					return nil, retriableErr
				},
				ResetConnectionFn: func(context.Context) error { return nil },
			},

			wantErr:    cdc.ErrTransientConnection,
			wantResets: 4,
		},
		{
			name: "error resetting connection",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(_ context.Context, i uint64) (*replication.Message, error) {
					require.Equal(t, uint64(1), i)
					return nil, retriableErr
				},
				ResetConnectionFn: func(context.Context) error {
					return errors.New("reset connection error")
				},
			},

			wantErr:    cdc.ErrTransientConnection,
			wantResets: 4,
		},
		{
			name: "invalid configuration is not retried",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(_ context.Context, i uint64) (*replication.Message, error) {
					require.Equal(t, uint64(1), i)
					return nil, fmt.Errorf("access denied: %w", cdc.ErrInvalidConfig)
				},
			},

			wantErr: cdc.ErrInvalidConfig,
		},
		{
			name: "closed stream is not retried",
			handler: &mocks.Handler{
				ReceiveMessageFn: func(context.Context, uint64) (*replication.Message, error) {
					return nil, replication.ErrStreamClosed
				},
			},

			wantErr: replication.ErrStreamClosed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			hr := HandlerRetrier{
				inner:           tc.handler,
				backoffProvider: newMockBackoffProvider(),
				logger:          log.NewNoopLogger(),
			}

			msg, err := hr.ReceiveMessage(context.Background())
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.wantMsg, msg)
			require.Equal(t, tc.wantResets, tc.handler.GetResetCalls())
		})
	}
}

func TestHandlerRetrier_StartReplication(t *testing.T) {
	t.Parallel()

	from := &cdc.Position{File: "mysql-bin.000003", Offset: 900, TxOffset: 800}
	calls := 0
	h := &mocks.Handler{
		StartReplicationFn: func(_ context.Context, pos *cdc.Position) error {
			require.Equal(t, from, pos)
			calls++
			if calls == 1 {
				return errors.New("connection refused")
			}
			return nil
		},
	}

	hr := HandlerRetrier{
		inner:           h,
		backoffProvider: newMockBackoffProvider(),
		logger:          log.NewNoopLogger(),
	}

	require.NoError(t, hr.StartReplication(context.Background(), from))
	require.Equal(t, 2, calls)
	require.Zero(t, h.GetResetCalls())
}

// mock backoff provider runs the operation for up to 3 retries until it
// succeeds or returns error
func newMockBackoffProvider() backoff.Provider {
	return func(ctx context.Context) backoff.Backoff {
		return backoff.NewConstantBackoff(ctx, &backoff.ConstantConfig{
			Interval:   0,
			MaxRetries: 3,
		})
	}
}
