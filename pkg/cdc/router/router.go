// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/cdc/sink/quarantine"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Router batches the events of each source, applies the batches to the sink
// in order and commits the position of every resolved batch. Sources are
// routed independently, a slow or failing source does not hold the others.
type Router struct {
	logger          loglib.Logger
	applier         Applier
	checkpoints     checkpointer.Store
	quarantine      quarantine.Quarantine
	clock           clockwork.Clock
	backoffProvider backoff.Provider
	onCommit        CommitHook

	batchSize       int
	batchWindow     time.Duration
	maxEventRetries uint
}

type Applier interface {
	Apply(ctx context.Context, batch []*cdc.Event) (*sink.CommitResult, error)
}

// CommitHook is called after the position of a batch has been committed.
type CommitHook func(sourceID string, stats BatchStats)

// BatchStats describes a resolved and committed batch.
type BatchStats struct {
	Position    cdc.Position
	Events      int
	Applied     int
	Stale       int
	Quarantined int
	// Dropped counts the ordering violations seen while the batch was built.
	Dropped  int
	Retries  int
	Duration time.Duration
}

type Option func(*Router)

var errPartialApply = errors.New("some events of the batch failed to apply")

func New(cfg Config, applier Applier, checkpoints checkpointer.Store, opts ...Option) *Router {
	r := &Router{
		logger:          loglib.NewNoopLogger(),
		applier:         applier,
		checkpoints:     checkpoints,
		quarantine:      quarantine.NewLog(nil),
		clock:           clockwork.NewRealClock(),
		backoffProvider: backoff.NewProvider(cfg.backoffConfig()),
		onCommit:        func(string, BatchStats) {},
		batchSize:       cfg.batchSize(),
		batchWindow:     cfg.batchWindow(),
		maxEventRetries: cfg.maxEventRetries(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithLogger(l loglib.Logger) Option {
	return func(r *Router) {
		r.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "router",
		})
	}
}

func WithQuarantine(q quarantine.Quarantine) Option {
	return func(r *Router) {
		r.quarantine = q
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(r *Router) {
		r.clock = c
	}
}

func WithCommitHook(hook CommitHook) Option {
	return func(r *Router) {
		r.onCommit = hook
	}
}

// Route consumes the events of a single source until the channel is closed or
// the context is cancelled. Events at or before resume, or not after the
// previous event, are ordering violations and are dropped. Batches are
// applied one at a time, the channel is not read while a batch is in flight.
//
// On cancellation the pending batch is still applied and committed before
// Route returns the context error. A closed channel flushes the pending batch
// and returns nil. A checkpoint failure stops the routing
// with an error wrapping cdc.ErrCheckpointPersistence.
func (r *Router) Route(ctx context.Context, sourceID string, resume *cdc.Position, events <-chan *cdc.Event) error {
	logger := r.logger.WithFields(loglib.Fields{loglib.SourceIDField: sourceID})
	b := &batch{sourceID: sourceID}
	if resume != nil {
		b.lastSeen = *resume
		b.hasLastSeen = true
	}

	// a batch taken off the channel always reaches a terminal outcome, even
	// if the context is cancelled while it is in flight
	drainCtx := context.WithoutCancel(ctx)
	var timer clockwork.Timer
	var timerC <-chan time.Time
	flush := func() error {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if b.isEmpty() {
			return nil
		}
		return r.resolve(drainCtx, logger, b.drain())
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("context terminated, draining in flight batch")
			if err := flush(); err != nil {
				return err
			}
			return ctx.Err()
		case <-timerC:
			if err := flush(); err != nil {
				return err
			}
		case event, ok := <-events:
			if !ok {
				return flush()
			}
			if err := b.add(event); err != nil {
				logger.Warn(err, "dropping event")
				continue
			}
			if timer == nil {
				timer = r.clock.NewTimer(r.batchWindow)
				timerC = timer.Chan()
			}
			if b.size() >= r.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// resolve applies the batch until every event is applied, stale or
// quarantined, and then commits its max position. Retriable failures are
// sent again until the batch retries are exhausted, rejected ones until they
// have been rejected more than maxEventRetries times.
func (r *Router) resolve(ctx context.Context, logger loglib.Logger, drained *drainedBatch) error {
	start := r.clock.Now()
	stats := BatchStats{
		Position: cdc.MaxPosition(drained.events),
		Events:   len(drained.events),
		Dropped:  drained.dropped,
	}

	pending := drained.events
	var failed []sink.EventFailure
	quarantined := []sink.EventFailure{}
	rejections := map[cdc.Position]uint{}
	apply := func() error {
		res, err := r.applier.Apply(ctx, pending)
		if err != nil {
			if !cdc.IsRetriable(err) || errors.Is(err, cdc.ErrPanic) {
				return fmt.Errorf("%w: %w", err, backoff.ErrPermanent)
			}
			return err
		}
		stats.Applied += res.Applied
		stats.Stale += res.Stale

		failed = failed[:0]
		pending = pending[:0:0]
		for _, f := range res.Failed {
			switch f.Severity {
			case sink.SeverityRetriable:
			case sink.SeverityRejected:
				rejections[f.Event.Position]++
				if rejections[f.Event.Position] > r.maxEventRetries {
					quarantined = append(quarantined, f)
					continue
				}
			default:
				quarantined = append(quarantined, f)
				continue
			}
			pending = append(pending, f.Event)
			failed = append(failed, f)
		}
		if len(pending) > 0 {
			return errPartialApply
		}
		return nil
	}

	bo := r.backoffProvider(ctx)
	err := bo.RetryNotify(apply, func(err error, d time.Duration) {
		stats.Retries++
		logger.Warn(err, "retrying batch", loglib.Fields{
			"pending": len(pending),
			"backoff": d.String(),
			"retry":   stats.Retries,
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, errPartialApply):
		// retries exhausted, the remaining events are quarantined
		quarantined = append(quarantined, failed...)
	default:
		return fmt.Errorf("applying batch up to %s: %w", stats.Position, err)
	}

	if len(quarantined) > 0 {
		if err := r.quarantine.Quarantine(ctx, quarantined); err != nil {
			return fmt.Errorf("quarantining %d events: %w", len(quarantined), err)
		}
		stats.Quarantined = len(quarantined)
	}

	if err := r.checkpoints.Commit(ctx, drained.sourceID, stats.Position); err != nil {
		if errors.Is(err, cdc.ErrCheckpointPersistence) {
			return err
		}
		return fmt.Errorf("%w: %w", cdc.ErrCheckpointPersistence, err)
	}

	stats.Duration = r.clock.Since(start)
	logger.Debug("batch committed", loglib.Fields{
		loglib.PositionField: stats.Position.String(),
		"events":             stats.Events,
		"applied":            stats.Applied,
		"stale":              stats.Stale,
		"quarantined":        stats.Quarantined,
		"dropped":            stats.Dropped,
		"duration":           stats.Duration,
	})
	r.onCommit(drained.sourceID, stats)
	return nil
}
