// SPDX-License-Identifier: Apache-2.0

package pebble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Store persists the checkpoints in a local pebble database. Every commit is
// synced to disk before returning. Records are cached in memory once loaded.
type Store struct {
	db     *pebble.DB
	cache  *xsync.MapOf[string, checkpointer.Record]
	logger loglib.Logger
	now    func() time.Time
	closed atomic.Bool
}

type Config struct {
	Dir string
}

type Option func(*Store)

const keyPrefix = "/checkpoint/"

var errStoreClosed = errors.New("checkpoint store closed")

func New(cfg *Config, opts ...Option) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: missing pebble checkpoint directory", cdc.ErrInvalidConfig)
	}

	db, err := pebble.Open(cfg.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble checkpoint store at %s: %w", cfg.Dir, err)
	}

	s := &Store{
		db:     db,
		cache:  xsync.NewMapOf[string, checkpointer.Record](),
		logger: loglib.NewNoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func WithLogger(l loglib.Logger) Option {
	return func(s *Store) {
		s.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "pebble_checkpointer",
		})
	}
}

func (s *Store) Get(_ context.Context, sourceID string) (*cdc.Position, error) {
	if s.closed.Load() {
		return nil, errStoreClosed
	}
	record, found := s.cache.Load(sourceID)
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
	if s.closed.Load() {
		return errStoreClosed
	}

	var commitErr error
	s.cache.Compute(sourceID, func(stored checkpointer.Record, loaded bool) (checkpointer.Record, bool) {
		if loaded && !stored.Position.Less(position) {
			return stored, false
		}

		record := checkpointer.Record{
			SourceID:  sourceID,
			Position:  position,
			UpdatedAt: s.now().UTC(),
		}
		if commitErr = s.write(record); commitErr != nil {
			// keep whatever was there before
			return stored, !loaded
		}
		return record, false
	})
	return commitErr
}

func (s *Store) List(context.Context) ([]checkpointer.Record, error) {
	if s.closed.Load() {
		return nil, errStoreClosed
	}
	records := make([]checkpointer.Record, 0, s.cache.Size())
	s.cache.Range(func(_ string, record checkpointer.Record) bool {
		records = append(records, record)
		return true
	})
	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceID < records[j].SourceID
	})
	return records, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) write(record checkpointer.Record) error {
	val, err := msgpack.Marshal(&record)
	if err != nil {
		return fmt.Errorf("encoding checkpoint of %s: %w", record.SourceID, err)
	}
	if err := s.db.Set(recordKey(record.SourceID), val, pebble.Sync); err != nil {
		return fmt.Errorf("writing checkpoint of %s: %w", record.SourceID, err)
	}
	return nil
}

func (s *Store) load() error {
	prefix := []byte(keyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("reading checkpoints: %w", err)
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return fmt.Errorf("reading checkpoint %s: %w", iter.Key(), err)
		}
		record := checkpointer.Record{}
		if err := msgpack.Unmarshal(val, &record); err != nil {
			return fmt.Errorf("decoding checkpoint %s: %w", iter.Key(), err)
		}
		s.cache.Store(record.SourceID, record)
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("reading checkpoints: %w", err)
	}

	s.logger.Info("loaded checkpoints", loglib.Fields{"count": s.cache.Size()})
	return nil
}

func recordKey(sourceID string) []byte {
	return []byte(keyPrefix + sourceID)
}

func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
