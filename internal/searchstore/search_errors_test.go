// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractResponseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		statusCode int

		wantErr   error
		wantCheck func(t *testing.T, err error)
	}{
		{
			name:       "too many requests",
			body:       `{"error":{"type":"es_rejected_execution_exception","reason":"queue full"}}`,
			statusCode: http.StatusTooManyRequests,
			wantErr:    ErrTooManyRequests,
			wantCheck: func(t *testing.T, err error) {
				require.True(t, errors.As(err, &RetryableError{}))
			},
		},
		{
			name:       "not found",
			body:       `{"error":{"type":"index_not_found_exception","reason":"no such index"}}`,
			statusCode: http.StatusNotFound,
			wantErr:    ErrResourceNotFound,
		},
		{
			name:       "index already exists",
			body:       `{"error":{"type":"resource_already_exists_exception","reason":"index [users] already exists"}}`,
			statusCode: http.StatusBadRequest,
			wantCheck: func(t *testing.T, err error) {
				var alreadyExists ErrResourceAlreadyExists
				require.True(t, errors.As(err, &alreadyExists))
				require.Equal(t, "index [users] already exists", alreadyExists.Reason)
			},
		},
		{
			name:       "invalid query",
			body:       `{"error":{"type":"parsing_exception","reason":"unknown query"}}`,
			statusCode: http.StatusBadRequest,
			wantCheck: func(t *testing.T, err error) {
				require.True(t, errors.As(err, &ErrQueryInvalid{}))
			},
		},
		{
			name:       "snapshot in progress",
			body:       `{"error":{"type":"snapshot_in_progress_exception","reason":"busy"}}`,
			statusCode: http.StatusBadRequest,
			wantCheck: func(t *testing.T, err error) {
				require.True(t, errors.As(err, &RetryableError{}))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ExtractResponseError(io.NopCloser(strings.NewReader(tc.body)), tc.statusCode)
			require.Error(t, err)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
			if tc.wantCheck != nil {
				tc.wantCheck(t, err)
			}
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	require.True(t, IsRetryableStatus(http.StatusTooManyRequests))
	require.True(t, IsRetryableStatus(http.StatusInternalServerError))
	require.True(t, IsRetryableStatus(http.StatusServiceUnavailable))
	require.False(t, IsRetryableStatus(http.StatusBadRequest))
	require.False(t, IsRetryableStatus(http.StatusConflict))
}
