// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
)

func pos(offset uint64) cdc.Position {
	return cdc.Position{File: "mysql-bin.000001", Offset: offset, TxOffset: 4}
}

func TestStore_CommitGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	got, err := s.Get(ctx, "db1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, s.Commit(ctx, "db1", pos(20)))
	require.NoError(t, s.Commit(ctx, "db2", pos(5)))

	got, err = s.Get(ctx, "db1")
	require.NoError(t, err)
	require.Equal(t, pos(20), *got)

	// never moves backwards
	require.NoError(t, s.Commit(ctx, "db1", pos(10)))
	got, err = s.Get(ctx, "db1")
	require.NoError(t, err)
	require.Equal(t, pos(20), *got)

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "db1", records[0].SourceID)
	require.Equal(t, pos(5), records[1].Position)

	require.ErrorIs(t, s.Commit(ctx, "", pos(1)), checkpointer.ErrInvalidSourceID)
}

func TestStore_ConcurrentCommits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	wg := sync.WaitGroup{}
	for src := range 4 {
		for i := 1; i <= 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				require.NoError(t, s.Commit(ctx, fmt.Sprintf("db%d", src), pos(uint64(i))))
			}()
		}
	}
	wg.Wait()

	for src := range 4 {
		got, err := s.Get(ctx, fmt.Sprintf("db%d", src))
		require.NoError(t, err)
		require.Equal(t, pos(100), *got)
	}
}
