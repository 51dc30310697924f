// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/replication"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Reader turns the raw row changes of a source replication stream into
// change events. Events are returned in strictly increasing position order.
type Reader struct {
	sourceID string
	handler  replication.Handler
	logger   loglib.Logger
	tables   map[string]struct{}
	keySep   string

	last *cdc.Position
}

type Option func(*Reader)

var ErrEndOfStream = errors.New("end of replication stream")

const defaultKeySeparator = "|"

// Open starts replication for the source right after the resume position,
// or from the handler's configured start position when resume is nil.
func Open(ctx context.Context, sourceID string, handler replication.Handler, resume *cdc.Position, opts ...Option) (*Reader, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: missing source id", cdc.ErrInvalidConfig)
	}

	r := &Reader{
		sourceID: sourceID,
		handler:  handler,
		logger:   loglib.NewNoopLogger(),
		keySep:   defaultKeySeparator,
	}
	for _, opt := range opts {
		opt(r)
	}

	if resume != nil {
		pos := *resume
		r.last = &pos
	}

	if err := handler.StartReplication(ctx, resume); err != nil {
		return nil, fmt.Errorf("starting replication for source %s: %w", sourceID, err)
	}

	r.logger.Info("source reader opened", loglib.Fields{"resume": positionField(resume)})
	return r, nil
}

func WithLogger(l loglib.Logger) Option {
	return func(r *Reader) {
		r.logger = loglib.ForSource(l, "source_reader", r.sourceID)
	}
}

// WithTables restricts the events to the tables on input. All tables of the
// source are streamed when not set.
func WithTables(tables ...string) Option {
	return func(r *Reader) {
		if len(tables) == 0 {
			return
		}
		r.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			r.tables[t] = struct{}{}
		}
	}
}

// Next returns the next change event. It blocks until one is available or
// the context is done. Ordering violations are logged and skipped.
func (r *Reader) Next(ctx context.Context) (*cdc.Event, error) {
	for {
		msg, err := r.handler.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, replication.ErrStreamClosed) {
				return nil, ErrEndOfStream
			}
			return nil, err
		}
		if msg == nil {
			continue
		}

		if r.last != nil && !r.last.Less(msg.Position) {
			violation := &cdc.OrderingViolationError{SourceID: r.sourceID, Last: *r.last, Got: msg.Position}
			r.logger.Warn(violation, "dropping out of order row change")
			continue
		}
		pos := msg.Position
		r.last = &pos

		if !r.wantsTable(msg.Table) {
			continue
		}

		event, err := r.normalise(msg)
		if err != nil {
			r.logger.Warn(err, "skipping row change", loglib.Fields{
				"table":              msg.Table,
				loglib.PositionField: msg.Position.String(),
			})
			continue
		}
		return event, nil
	}
}

// LastPosition returns the position of the last message read from the
// stream, including the ones that were filtered out.
func (r *Reader) LastPosition() *cdc.Position {
	if r.last == nil {
		return nil
	}
	pos := *r.last
	return &pos
}

func (r *Reader) Close() error {
	return r.handler.Close()
}

func (r *Reader) wantsTable(table string) bool {
	if r.tables == nil {
		return true
	}
	_, found := r.tables[table]
	return found
}

var errMissingPrimaryKey = errors.New("row change without primary key")

func (r *Reader) normalise(msg *replication.Message) (*cdc.Event, error) {
	if !msg.Operation.IsValid() {
		return nil, fmt.Errorf("unsupported operation %q", msg.Operation)
	}

	key, err := r.primaryKey(msg)
	if err != nil {
		return nil, err
	}

	event := &cdc.Event{
		SourceID:   r.sourceID,
		Operation:  msg.Operation,
		Key:        key,
		Position:   msg.Position,
		Schema:     msg.Schema,
		Table:      msg.Table,
		CommitTime: msg.ServerTime,
	}
	if msg.Operation != cdc.OperationDelete {
		event.Fields = make(map[string]any, len(msg.Row))
		for col, value := range msg.Row {
			event.Fields[col] = normaliseValue(value)
		}
	}
	return event, nil
}

func (r *Reader) primaryKey(msg *replication.Message) (string, error) {
	pk := msg.PrimaryKey
	if len(pk) == 0 {
		return "", errMissingPrimaryKey
	}

	parts := make([]string, 0, len(pk))
	for _, col := range pk {
		value, found := msg.Row[col]
		if !found || value == nil {
			return "", fmt.Errorf("%w: missing value for column %s", errMissingPrimaryKey, col)
		}
		parts = append(parts, stringify(normaliseValue(value)))
	}
	return strings.Join(parts, r.keySep), nil
}

// normaliseValue converts the column values decoded from the binary log into
// values that can be indexed as they are.
func normaliseValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, nested := range v {
			out[k] = normaliseValue(nested)
		}
		return out
	default:
		return v
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func positionField(pos *cdc.Position) string {
	if pos == nil {
		return "start"
	}
	return pos.String()
}
