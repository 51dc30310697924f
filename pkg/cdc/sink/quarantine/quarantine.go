// SPDX-License-Identifier: Apache-2.0

package quarantine

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/xataio/mystream/pkg/cdc/sink"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Quarantine receives the events the sink could not apply after all retries.
// Quarantined events are not retried again and the source moves past them.
type Quarantine interface {
	Quarantine(ctx context.Context, failures []sink.EventFailure) error
	Close() error
}

// Record is the persisted form of a quarantined event.
type Record struct {
	ID            string         `json:"id"`
	SourceID      string         `json:"source_id"`
	Key           string         `json:"key"`
	Operation     string         `json:"operation"`
	Position      string         `json:"position"`
	Fields        map[string]any `json:"fields,omitempty"`
	Severity      string         `json:"severity"`
	Error         string         `json:"error"`
	QuarantinedAt time.Time      `json:"quarantined_at"`
}

func newRecord(f sink.EventFailure, now time.Time) Record {
	r := Record{
		ID:            xid.New().String(),
		Severity:      f.Severity.String(),
		QuarantinedAt: now.UTC(),
	}
	if f.Err != nil {
		r.Error = f.Err.Error()
	}
	if f.Event != nil {
		r.SourceID = f.Event.SourceID
		r.Key = f.Event.Key
		r.Operation = string(f.Event.Operation)
		r.Position = f.Event.Position.String()
		r.Fields = f.Event.Fields
	}
	return r
}

// Log reports quarantined events in the logs only.
type Log struct {
	logger loglib.Logger
	now    func() time.Time
}

func NewLog(logger loglib.Logger) *Log {
	return &Log{
		logger: loglib.NewLogger(logger).WithFields(loglib.Fields{
			loglib.ModuleField: "quarantine",
		}),
		now: time.Now,
	}
}

func (q *Log) Quarantine(_ context.Context, failures []sink.EventFailure) error {
	for _, f := range failures {
		logRecord(q.logger, newRecord(f, q.now()), f.Err)
	}
	return nil
}

func (q *Log) Close() error {
	return nil
}

func logRecord(logger loglib.Logger, r Record, err error) {
	logger.Error(err, "event quarantined", loglib.Fields{
		"quarantine_id":      r.ID,
		loglib.SourceIDField: r.SourceID,
		"key":                r.Key,
		"operation":          r.Operation,
		loglib.PositionField: r.Position,
		"severity":           r.Severity,
	})
}
