// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xataio/mystream/pkg/cdc"
)

func newTestEvent(source, key string, op cdc.Operation, offset uint64, fields map[string]any) *cdc.Event {
	return &cdc.Event{
		SourceID:  source,
		Operation: op,
		Key:       key,
		Fields:    fields,
		Position:  cdc.Position{File: "mysql-bin.000001", Offset: offset, TxOffset: offset},
	}
}

type storedDoc struct {
	version int64
	deleted bool
	fields  map[string]any
}

// versionedStore mimics the external versioning of the search index: a write
// is only applied if its version is greater than the stored one, deletes
// leave a versioned tombstone behind.
type versionedStore struct {
	mu   sync.Mutex
	docs map[string]storedDoc
}

func newVersionedStore() *versionedStore {
	return &versionedStore{docs: map[string]storedDoc{}}
}

func (s *versionedStore) EnsureIndex(context.Context) error { return nil }

func (s *versionedStore) SendDocuments(_ context.Context, docs []Document) ([]DocumentError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := []DocumentError{}
	for _, doc := range docs {
		stored, found := s.docs[doc.ID]
		if found && stored.version >= doc.Version {
			failed = append(failed, DocumentError{Document: doc, Severity: SeverityStale, Error: "version conflict"})
			continue
		}
		s.docs[doc.ID] = storedDoc{version: doc.Version, deleted: doc.Delete, fields: doc.Fields}
	}
	return failed, nil
}

// live returns the documents that are not deleted.
func (s *versionedStore) live() map[string]storedDoc {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := map[string]storedDoc{}
	for id, doc := range s.docs {
		if !doc.deleted {
			live[id] = doc
		}
	}
	return live
}

type mockStore struct {
	ensureIndexFn   func(ctx context.Context) error
	sendDocumentsFn func(ctx context.Context, i uint64, docs []Document) ([]DocumentError, error)
	sendCalls       uint64
}

func (m *mockStore) EnsureIndex(ctx context.Context) error {
	if m.ensureIndexFn == nil {
		return nil
	}
	return m.ensureIndexFn(ctx)
}

func (m *mockStore) SendDocuments(ctx context.Context, docs []Document) ([]DocumentError, error) {
	i := atomic.AddUint64(&m.sendCalls, 1)
	return m.sendDocumentsFn(ctx, i, docs)
}

func (m *mockStore) getSendCalls() uint64 {
	return atomic.LoadUint64(&m.sendCalls)
}
