// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/pkg/cdc"
)

func TestStatusRegistry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	transitions := []State{}
	r := newStatusRegistry([]string{"db2", "db1"})
	r.now = func() time.Time { return now }
	r.onTransition = func(_ string, _, to State) { transitions = append(transitions, to) }

	// already starting
	r.transition("db1", StateStarting, nil)
	r.transition("db1", StateStreaming, nil)
	r.committed("db1", testPos(10))
	r.transition("db1", StateRecovering, errTest)

	status, found := r.get("db1")
	require.True(t, found)
	require.Equal(t, SourceStatus{
		SourceID:      "db1",
		State:         StateRecovering,
		LastCommitted: func() *cdc.Position { p := testPos(10); return &p }(),
		LastError:     errTest.Error(),
		Transitions:   2,
		Batches:       1,
		UpdatedAt:     now,
	}, status)

	r.transition("db1", StateStreaming, nil)
	status, _ = r.get("db1")
	require.Empty(t, status.LastError)

	r.transition("db1", StateStopped, errTest)
	status, _ = r.get("db1")
	require.True(t, status.Failed())

	require.Equal(t, []State{StateStreaming, StateRecovering, StateStreaming, StateStopped}, transitions)

	list := r.list()
	require.Len(t, list, 2)
	require.Equal(t, "db1", list[0].SourceID)
	require.Equal(t, "db2", list[1].SourceID)
	require.Equal(t, StateStarting, list[1].State)
	require.False(t, list[1].Failed())
}
