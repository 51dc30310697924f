// SPDX-License-Identifier: Apache-2.0

package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/pkg/cdc/replication/mocks"
)

func TestMetricsCache_GetReplicationLag(t *testing.T) {
	t.Parallel()

	errTest := errors.New("oh noes")
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		cachedLag int64
		updatedAt time.Time
		lagFn     func(context.Context) (int64, error)

		wantLag int64
		wantErr error
	}{
		{
			name:    "cache not set",
			lagFn:   func(context.Context) (int64, error) { return 100, nil },
			wantLag: 100,
		},
		{
			name:      "cache valid",
			cachedLag: 50,
			updatedAt: now.Add(-10 * time.Second),
			lagFn: func(context.Context) (int64, error) {
				return 0, errors.New("unexpected call to GetReplicationLag")
			},
			wantLag: 50,
		},
		{
			name:      "cache expired",
			cachedLag: 50,
			updatedAt: now.Add(-2 * time.Minute),
			lagFn:     func(context.Context) (int64, error) { return 200, nil },
			wantLag:   200,
		},
		{
			name:      "error retrieving lag",
			cachedLag: 50,
			updatedAt: now.Add(-2 * time.Minute),
			lagFn:     func(context.Context) (int64, error) { return 0, errTest },
			wantErr:   errTest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newMetricsCache(&mocks.Handler{GetReplicationLagFn: tc.lagFn}, time.Minute)
			c.now = func() time.Time { return now }
			c.lag = tc.cachedLag
			c.updatedAt = tc.updatedAt

			lag, err := c.GetReplicationLag(context.Background())
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.wantLag, lag)
		})
	}
}
