// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	synclib "github.com/xataio/mystream/internal/sync"
	"github.com/xataio/mystream/pkg/cdc"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Applier turns batches of change events into versioned writes on the sink
// store.
type Applier struct {
	store        Store
	hasher       IDHasher
	logger       loglib.Logger
	writeTimeout time.Duration
	writeSlots   synclib.Slots
}

type ApplierConfig struct {
	// WriteTimeout bounds a single bulk write. Defaults to 30s.
	WriteTimeout time.Duration
	// MaxConcurrentWrites bounds the bulk writes in flight across all
	// sources. Defaults to 8.
	MaxConcurrentWrites int64
}

// CommitResult is the outcome of applying a batch. Applied and Stale events
// are done. Failed events were not applied.
type CommitResult struct {
	Applied int
	Stale   int
	Failed  []EventFailure
}

type EventFailure struct {
	Event    *cdc.Event
	Severity Severity
	Err      error
}

type ApplierOption func(*Applier)

const (
	defaultWriteTimeout        = 30 * time.Second
	defaultMaxConcurrentWrites = 8
)

func NewApplier(store Store, cfg ApplierConfig, opts ...ApplierOption) *Applier {
	a := &Applier{
		store:        store,
		hasher:       DefaultIDHasher(),
		logger:       loglib.NewNoopLogger(),
		writeTimeout: cfg.writeTimeout(),
		writeSlots:   synclib.NewSlots(cfg.maxConcurrentWrites()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func WithLogger(l loglib.Logger) ApplierOption {
	return func(a *Applier) {
		a.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "sink_applier",
		})
	}
}

func WithIDHasher(h IDHasher) ApplierOption {
	return func(a *Applier) {
		a.hasher = h
	}
}

// Apply writes the batch on input and returns once the store acknowledged
// it. Per event failures are reported in the result, an error means the
// batch as a whole was not applied.
func (a *Applier) Apply(ctx context.Context, batch []*cdc.Event) (res *CommitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(nil, "recovered from panic applying batch", loglib.Fields{
				"panic":      r,
				"stack":      string(debug.Stack()),
				"batch_size": len(batch),
			})
			res = nil
			err = fmt.Errorf("%w: %v", cdc.ErrPanic, r)
		}
	}()

	res = &CommitResult{}
	if len(batch) == 0 {
		return res, nil
	}

	docs := make([]Document, 0, len(batch))
	for _, event := range batch {
		doc, err := NewDocument(event, a.hasher)
		if err != nil {
			res.Failed = append(res.Failed, EventFailure{
				Event:    event,
				Severity: SeverityRejected,
				Err:      &cdc.SinkRejectionError{Event: event, Reason: err.Error()},
			})
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return res, nil
	}

	if err := a.writeSlots.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.writeSlots.Release()

	writeCtx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	failed, err := a.store.SendDocuments(writeCtx, docs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: bulk write timed out after %s: %w", cdc.ErrTransientConnection, a.writeTimeout, err)
		}
		return nil, fmt.Errorf("sending documents: %w", err)
	}

	for _, f := range failed {
		switch f.Severity {
		case SeverityNone:
		case SeverityStale:
			res.Stale++
		case SeverityRetriable:
			res.Failed = append(res.Failed, EventFailure{
				Event:    f.Document.Event,
				Severity: SeverityRetriable,
				Err:      fmt.Errorf("%w: %s", cdc.ErrTransientConnection, f.Error),
			})
		default:
			res.Failed = append(res.Failed, EventFailure{
				Event:    f.Document.Event,
				Severity: SeverityRejected,
				Err:      &cdc.SinkRejectionError{Event: f.Document.Event, Reason: f.Error},
			})
		}
	}
	res.Applied = len(batch) - res.Stale - len(res.Failed)

	a.logger.Trace("batch applied", loglib.Fields{
		"batch_size": len(batch),
		"applied":    res.Applied,
		"stale":      res.Stale,
		"failed":     len(res.Failed),
	})

	return res, nil
}

// Retriable returns the events of the failures that can be sent again.
func (r *CommitResult) Retriable() []*cdc.Event {
	events := []*cdc.Event{}
	for _, f := range r.Failed {
		if f.Severity == SeverityRetriable {
			events = append(events, f.Event)
		}
	}
	return events
}

func (c ApplierConfig) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return defaultWriteTimeout
}

func (c ApplierConfig) maxConcurrentWrites() int64 {
	if c.MaxConcurrentWrites > 0 {
		return c.MaxConcurrentWrites
	}
	return defaultMaxConcurrentWrites
}
