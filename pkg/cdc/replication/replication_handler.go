// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"context"
	"errors"
	"time"

	"github.com/xataio/mystream/pkg/cdc"
)

// Handler streams the row changes of a single source database.
type Handler interface {
	// StartReplication starts streaming after the position on input, or from
	// the configured start position when nil.
	StartReplication(ctx context.Context, from *cdc.Position) error
	ReceiveMessage(ctx context.Context) (*Message, error)
	// ResetConnection reconnects and resumes streaming right after the last
	// message returned by ReceiveMessage.
	ResetConnection(ctx context.Context) error
	// GetReplicationLag returns the number of bytes of binary log not yet
	// streamed.
	GetReplicationLag(ctx context.Context) (int64, error)
	Close() error
}

// Message is a single row change read from the replication stream.
type Message struct {
	Position  cdc.Position
	Schema    string
	Table     string
	Operation cdc.Operation
	// Row is the after image for inserts and updates, and the before image
	// for deletes.
	Row        map[string]any
	PrimaryKey []string
	ServerTime time.Time
}

var (
	ErrConnTimeout  = errors.New("connection timeout")
	ErrStreamClosed = errors.New("replication stream closed")
)
