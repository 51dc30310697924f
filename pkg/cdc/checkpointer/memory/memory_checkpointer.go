// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
)

// Store keeps the checkpoints in process memory. Positions are lost on
// restart, it is meant for tests and dry runs.
type Store struct {
	records *xsync.MapOf[string, checkpointer.Record]
	now     func() time.Time
}

func New() *Store {
	return &Store{
		records: xsync.NewMapOf[string, checkpointer.Record](),
		now:     time.Now,
	}
}

func (s *Store) Get(_ context.Context, sourceID string) (*cdc.Position, error) {
	record, found := s.records.Load(sourceID)
	if !found {
		return nil, nil
	}
	pos := record.Position
	return &pos, nil
}

func (s *Store) Commit(_ context.Context, sourceID string, position cdc.Position) error {
	if sourceID == "" {
		return checkpointer.ErrInvalidSourceID
	}

	s.records.Compute(sourceID, func(stored checkpointer.Record, loaded bool) (checkpointer.Record, bool) {
		if loaded && !stored.Position.Less(position) {
			return stored, false
		}
		return checkpointer.Record{
			SourceID:  sourceID,
			Position:  position,
			UpdatedAt: s.now(),
		}, false
	})
	return nil
}

func (s *Store) List(context.Context) ([]checkpointer.Record, error) {
	records := make([]checkpointer.Record, 0, s.records.Size())
	s.records.Range(func(_ string, record checkpointer.Record) bool {
		records = append(records, record)
		return true
	})
	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceID < records[j].SourceID
	})
	return records, nil
}

func (s *Store) Close() error {
	return nil
}
