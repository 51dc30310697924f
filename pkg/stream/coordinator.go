// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	"github.com/xataio/mystream/pkg/cdc/reader"
	"github.com/xataio/mystream/pkg/cdc/replication"
	"github.com/xataio/mystream/pkg/cdc/router"
	"github.com/xataio/mystream/pkg/cdc/sink/quarantine"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Coordinator owns the lifecycle of the source pipelines. Each source runs
// its own reader and dispatch loop, a failing source is recovered or
// stopped without affecting the others.
type Coordinator struct {
	logger          loglib.Logger
	runID           string
	sources         map[string]Source
	index           IndexBootstrapper
	applier         router.Applier
	checkpoints     checkpointer.Store
	quarantine      quarantine.Quarantine
	routerCfg       router.Config
	recoveryBackoff backoff.Provider
	bufferSize      int
	metrics         *Metrics

	router   *router.Router
	registry *statusRegistry
}

// Source describes how to open the replication stream of a source.
type Source struct {
	ID     string
	Tables []string
	// Open returns a new replication handler for the source. It's called on
	// start and on every recovery.
	Open func(ctx context.Context) (replication.Handler, error)
}

// IndexBootstrapper creates the unified index when it doesn't exist.
type IndexBootstrapper interface {
	EnsureIndex(ctx context.Context) error
}

type CoordinatorOption func(*Coordinator)

// errRecoveredProgress marks a source failure after the source committed
// batches, which restarts its recovery budget.
var errRecoveredProgress = errors.New("source failed after making progress")

var errReopenPending = errors.New("source reopen pending")

func NewCoordinator(sources []Source, index IndexBootstrapper, applier router.Applier, checkpoints checkpointer.Store, opts ...CoordinatorOption) (*Coordinator, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %w", cdc.ErrInvalidConfig, errNoSources)
	}

	c := &Coordinator{
		logger:          loglib.NewNoopLogger(),
		runID:           xid.New().String(),
		sources:         make(map[string]Source, len(sources)),
		index:           index,
		applier:         applier,
		checkpoints:     checkpoints,
		quarantine:      quarantine.NewLog(nil),
		recoveryBackoff: backoff.NewProvider((&RetryConfig{}).recoveryBackoff()),
		bufferSize:      defaultEventBufferSize,
	}

	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		if src.ID == "" || src.Open == nil {
			return nil, fmt.Errorf("%w: source %q is missing an id or a replication handler", cdc.ErrInvalidConfig, src.ID)
		}
		if _, found := c.sources[src.ID]; found {
			return nil, fmt.Errorf("%w: %w: %s", cdc.ErrInvalidConfig, errDuplicateSource, src.ID)
		}
		c.sources[src.ID] = src
		ids = append(ids, src.ID)
	}

	for _, opt := range opts {
		opt(c)
	}

	c.registry = newStatusRegistry(ids)
	if c.metrics != nil {
		c.registry.onTransition = c.metrics.observeTransition
	}

	c.router = router.New(c.routerCfg, c.applier, c.checkpoints,
		router.WithLogger(c.logger),
		router.WithQuarantine(c.quarantine),
		router.WithCommitHook(c.onCommit))

	return c, nil
}

func WithLogger(l loglib.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "coordinator",
			"run_id":           c.runID,
		})
	}
}

func WithRouterConfig(cfg router.Config) CoordinatorOption {
	return func(c *Coordinator) {
		c.routerCfg = cfg
	}
}

func WithRecoveryBackoff(cfg *backoff.Config) CoordinatorOption {
	return func(c *Coordinator) {
		c.recoveryBackoff = backoff.NewProvider(cfg)
	}
}

func WithQuarantine(q quarantine.Quarantine) CoordinatorOption {
	return func(c *Coordinator) {
		c.quarantine = q
	}
}

func WithEventBufferSize(size int) CoordinatorOption {
	return func(c *Coordinator) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// Run streams all the sources until the context is cancelled or every
// source has stopped. The returned error aggregates the errors of the
// sources that stopped on failure.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.index.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("bootstrapping index: %w", err)
	}

	var mu sync.Mutex
	var errs []error

	eg := &errgroup.Group{}
	for _, src := range c.sources {
		eg.Go(func() error {
			if err := c.runSource(ctx, src); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	eg.Wait()

	c.logger.Info("all sources stopped")
	return errors.Join(errs...)
}

// Status returns the state of every source, sorted by source id.
func (c *Coordinator) Status() []SourceStatus {
	return c.registry.list()
}

// runSource drives the state machine of a source until it stops. It
// returns nil when stopped by the context or by the end of the stream.
func (c *Coordinator) runSource(ctx context.Context, src Source) error {
	logger := loglib.ForSource(c.logger, "coordinator", src.ID)
	c.registry.transition(src.ID, StateStarting, nil)

	for {
		var lastErr error
		bo := c.recoveryBackoff(ctx)
		err := bo.RetryNotify(func() error {
			err := c.streamSource(ctx, logger, src)
			lastErr = err
			switch {
			case err == nil:
				return nil
			case ctx.Err() != nil:
				return fmt.Errorf("%w: %w", ctx.Err(), backoff.ErrPermanent)
			case !cdc.IsRetriable(err):
				return fmt.Errorf("%w: %w", err, backoff.ErrPermanent)
			}
			return err
		}, func(err error, d time.Duration) {
			logger.Warn(err, "source failed, recovering from last committed position", loglib.Fields{
				"backoff": d.String(),
			})
			c.registry.transition(src.ID, StateRecovering, err)
		})

		if errors.Is(err, errRecoveredProgress) {
			c.registry.transition(src.ID, StateRecovering, err)
			if err := c.waitRecovery(ctx, logger, lastErr); err != nil && ctx.Err() != nil {
				logger.Info("source stopped")
				c.registry.transition(src.ID, StateStopped, nil)
				return nil
			}
			continue
		}

		switch {
		case err == nil, ctx.Err() != nil:
			logger.Info("source stopped")
			c.registry.transition(src.ID, StateStopped, nil)
			return nil
		default:
			if lastErr == nil {
				lastErr = err
			}
			logger.Error(lastErr, "source stopped")
			c.registry.transition(src.ID, StateStopped, lastErr)
			return lastErr
		}
	}
}

// waitRecovery waits one interval of a fresh recovery backoff before a
// source that failed after making progress is reopened.
func (c *Coordinator) waitRecovery(ctx context.Context, logger loglib.Logger, cause error) error {
	waited := false
	return c.recoveryBackoff(ctx).RetryNotify(func() error {
		if waited {
			return nil
		}
		waited = true
		return errReopenPending
	}, func(_ error, d time.Duration) {
		logger.Warn(cause, "source failed after progress, recovering from last committed position", loglib.Fields{
			"backoff": d.String(),
		})
	})
}

// streamSource opens the source at its last committed position and streams
// it until the stream ends or fails. Batches in flight when the stream
// stops are applied and committed before it returns.
func (c *Coordinator) streamSource(ctx context.Context, logger loglib.Logger, src Source) error {
	resume, err := c.checkpoints.Get(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	handler, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening replication: %w", err)
	}

	rdr, err := reader.Open(ctx, src.ID, handler, resume,
		reader.WithLogger(logger),
		reader.WithTables(src.Tables...))
	if err != nil {
		handler.Close()
		return err
	}
	defer rdr.Close()

	status, _ := c.registry.get(src.ID)
	batchesBefore := status.Batches
	c.registry.transition(src.ID, StateStreaming, nil)

	events := make(chan *cdc.Event, c.bufferSize)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(events)
		for {
			event, err := rdr.Next(egCtx)
			if err != nil {
				if errors.Is(err, reader.ErrEndOfStream) {
					logger.Info("replication stream ended")
					return nil
				}
				return fmt.Errorf("reading source: %w", err)
			}
			select {
			case events <- event:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
	})
	eg.Go(func() error {
		return c.router.Route(egCtx, src.ID, resume, events)
	})

	err = eg.Wait()
	if err == nil || ctx.Err() != nil {
		return err
	}

	status, _ = c.registry.get(src.ID)
	if status.Batches > batchesBefore && cdc.IsRetriable(err) {
		return fmt.Errorf("%w: %w: %w", errRecoveredProgress, err, backoff.ErrPermanent)
	}
	return err
}

func (c *Coordinator) onCommit(sourceID string, stats router.BatchStats) {
	c.registry.committed(sourceID, stats.Position)
	if c.metrics != nil {
		c.metrics.observeBatch(sourceID, stats)
	}
}
