// SPDX-License-Identifier: Apache-2.0

package checkpointer

import (
	"context"
	"errors"
	"time"

	"github.com/xataio/mystream/pkg/cdc"
)

// Store persists the last committed position of every source. A commit is
// durable once it returns, and a position never moves backwards.
type Store interface {
	// Get returns the committed position of the source, or nil if it has
	// never committed.
	Get(ctx context.Context, sourceID string) (*cdc.Position, error)
	Commit(ctx context.Context, sourceID string, position cdc.Position) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

type Record struct {
	SourceID  string       `msgpack:"source_id" json:"source_id"`
	Position  cdc.Position `msgpack:"position" json:"position"`
	UpdatedAt time.Time    `msgpack:"updated_at" json:"updated_at"`
}

var ErrInvalidSourceID = errors.New("invalid source id")

// IsNewer reports whether the position on input should replace the stored
// one.
func IsNewer(stored *cdc.Position, position cdc.Position) bool {
	return stored == nil || stored.Less(position)
}
