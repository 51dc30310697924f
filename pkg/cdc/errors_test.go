// SPDX-License-Identifier: Apache-2.0

package cdc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRetriable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "transient", err: fmt.Errorf("reading: %w", ErrTransientConnection), want: true},
		{name: "checkpoint", err: fmt.Errorf("commit: %w", ErrCheckpointPersistence), want: true},
		{name: "generic", err: errors.New("oh noes"), want: true},
		{name: "invalid config", err: fmt.Errorf("source db1: %w", ErrInvalidConfig), want: false},
		{name: "unknown source", err: ErrUnknownSource, want: false},
		{
			name: "ordering violation",
			err:  &OrderingViolationError{SourceID: "db1"},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsRetriable(tc.err))
		})
	}
}

func TestSinkRejectionError(t *testing.T) {
	t.Parallel()

	err := &SinkRejectionError{
		Event:  &Event{SourceID: "db1", Key: "42", Operation: OperationInsert, Position: Position{File: "bin.000001", Offset: 10, TxOffset: 4}},
		Reason: "mapper_parsing_exception",
	}
	require.ErrorIs(t, err, ErrSinkRejection)
	require.Contains(t, err.Error(), "INSERT db1/42@bin.000001:10/4")
}
