// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/internal/searchstore"
	"github.com/xataio/mystream/pkg/backoff"
	backoffmocks "github.com/xataio/mystream/pkg/backoff/mocks"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/log"
)

func TestStoreRetrier_SendDocuments(t *testing.T) {
	t.Parallel()

	docA := Document{ID: "a", Version: 1}
	docB := Document{ID: "b", Version: 2}
	docC := Document{ID: "c", Version: 3}
	errTest := errors.New("oh noes")

	tests := []struct {
		name  string
		store *mockStore

		wantFailed []DocumentError
		wantErr    error
		wantCalls  uint64
	}{
		{
			name: "ok",
			store: &mockStore{
				sendDocumentsFn: func(context.Context, uint64, []Document) ([]DocumentError, error) {
					return nil, nil
				},
			},
			wantFailed: []DocumentError{},
			wantCalls:  1,
		},
		{
			name: "retriable document succeeds on retry",
			store: &mockStore{
				sendDocumentsFn: func(_ context.Context, i uint64, docs []Document) ([]DocumentError, error) {
					switch i {
					case 1:
						return []DocumentError{
							{Document: docA, Severity: SeverityStale},
							{Document: docB, Severity: SeverityRetriable},
						}, nil
					case 2:
						if len(docs) != 1 || docs[0].ID != "b" {
							return nil, errors.New("sendDocumentsFn: unexpected docs on retry")
						}
						return nil, nil
					default:
						return nil, errors.New("sendDocumentsFn: unexpected call")
					}
				},
			},
			wantFailed: []DocumentError{
				{Document: docA, Severity: SeverityStale},
			},
			wantCalls: 2,
		},
		{
			name: "retries exhausted",
			store: &mockStore{
				sendDocumentsFn: func(_ context.Context, _ uint64, docs []Document) ([]DocumentError, error) {
					failed := []DocumentError{}
					for _, d := range docs {
						sev := SeverityRetriable
						if d.ID == "c" {
							sev = SeverityRejected
						}
						failed = append(failed, DocumentError{Document: d, Severity: sev})
					}
					return failed, nil
				},
			},
			wantFailed: []DocumentError{
				{Document: docC, Severity: SeverityRejected},
				{Document: docA, Severity: SeverityRetriable},
				{Document: docB, Severity: SeverityRetriable},
			},
			wantCalls: 3,
		},
		{
			name: "transient request error",
			store: &mockStore{
				sendDocumentsFn: func(_ context.Context, i uint64, _ []Document) ([]DocumentError, error) {
					if i == 1 {
						return nil, errTest
					}
					return nil, nil
				},
			},
			wantFailed: []DocumentError{},
			wantCalls:  2,
		},
		{
			name: "permanent request error",
			store: &mockStore{
				sendDocumentsFn: func(context.Context, uint64, []Document) ([]DocumentError, error) {
					return nil, searchstore.ErrQueryInvalid{Cause: errTest}
				},
			},
			wantErr:   errTest,
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sr := &StoreRetrier{
				inner:           tc.store,
				logger:          log.NewNoopLogger(),
				backoffProvider: newMockBackoffProvider(2),
			}

			failed, err := sr.SendDocuments(context.Background(), []Document{docA, docB, docC})
			require.Equal(t, tc.wantCalls, tc.store.getSendCalls())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Nil(t, failed)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantFailed, failed)
		})
	}
}

func TestStoreRetrier_EnsureIndex(t *testing.T) {
	t.Parallel()

	calls := 0
	sr := &StoreRetrier{
		inner: &mockStore{
			ensureIndexFn: func(context.Context) error {
				calls++
				if calls == 1 {
					return cdc.ErrTransientConnection
				}
				return nil
			},
		},
		logger:          log.NewNoopLogger(),
		backoffProvider: newMockBackoffProvider(2),
	}

	require.NoError(t, sr.EnsureIndex(context.Background()))
	require.Equal(t, 2, calls)
}

func TestStoreRetrier_SendDocuments_RetriesExhausted(t *testing.T) {
	t.Parallel()

	doc := Document{ID: "a", Version: 10}
	bo := &backoffmocks.Backoff{}
	sr := &StoreRetrier{
		inner: &mockStore{
			sendDocumentsFn: func(_ context.Context, _ uint64, docs []Document) ([]DocumentError, error) {
				return []DocumentError{{Document: docs[0], Severity: SeverityRetriable, Error: "es_rejected_execution_exception"}}, nil
			},
		},
		logger:          log.NewNoopLogger(),
		backoffProvider: func(context.Context) backoff.Backoff { return bo },
	}

	// the backoff gives up after the first attempt, the pending failure is
	// handed back to the caller instead of an error
	failed, err := sr.SendDocuments(context.Background(), []Document{doc})
	require.NoError(t, err)
	require.Equal(t, 1, bo.Calls)
	require.Equal(t, []DocumentError{{Document: doc, Severity: SeverityRetriable, Error: "es_rejected_execution_exception"}}, failed)
}

func newMockBackoffProvider(maxRetries uint) backoff.Provider {
	return func(ctx context.Context) backoff.Backoff {
		return backoff.NewConstantBackoff(ctx, &backoff.ConstantConfig{
			MaxRetries: maxRetries,
		})
	}
}
