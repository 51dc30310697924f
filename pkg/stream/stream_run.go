// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	checkpointinstrumentation "github.com/xataio/mystream/pkg/cdc/checkpointer/instrumentation"
	memorycheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/memory"
	pebblecheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/pebble"
	pgcheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/postgres"
	checkpointretrier "github.com/xataio/mystream/pkg/cdc/checkpointer/retrier"
	"github.com/xataio/mystream/pkg/cdc/replication"
	replicationinstrumentation "github.com/xataio/mystream/pkg/cdc/replication/instrumentation"
	mysqlreplication "github.com/xataio/mystream/pkg/cdc/replication/mysql"
	replicationretrier "github.com/xataio/mystream/pkg/cdc/replication/retrier"
	"github.com/xataio/mystream/pkg/cdc/sink"
	sinkinstrumentation "github.com/xataio/mystream/pkg/cdc/sink/instrumentation"
	"github.com/xataio/mystream/pkg/cdc/sink/quarantine"
	"github.com/xataio/mystream/pkg/cdc/sink/store"
	loglib "github.com/xataio/mystream/pkg/log"
	"github.com/xataio/mystream/pkg/otel"
)

const statusServerShutdownTimeout = 5 * time.Second

// Run will stream the configured sources into the unified index until the
// context is cancelled or all the sources have stopped. This call is
// blocking.
func Run(ctx context.Context, logger loglib.Logger, config *Config, instrumentation *otel.Instrumentation) error {
	if err := config.IsValid(); err != nil {
		return fmt.Errorf("incompatible configuration: %w", err)
	}

	// Checkpoints

	checkpoints, err := newCheckpointStore(ctx, logger, config, instrumentation)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	// Sink

	sinkStore, err := newSinkStore(logger, config, instrumentation)
	if err != nil {
		return err
	}

	q, err := newQuarantine(logger, config)
	if err != nil {
		return err
	}
	defer q.Close()

	applier := sink.NewApplier(sinkStore, config.Sink.Applier, sink.WithLogger(logger))

	// Coordinator

	metrics := NewMetrics()
	coordinator, err := NewCoordinator(
		newSources(logger, config, instrumentation),
		sinkStore,
		applier,
		checkpoints,
		WithLogger(logger),
		WithRouterConfig(config.Router),
		WithRecoveryBackoff(config.Retries.recoveryBackoff()),
		WithQuarantine(q),
		WithEventBufferSize(config.eventBufferSize()),
		WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	runCtx, stopServer := context.WithCancel(egCtx)

	if config.StatusServer != nil {
		server := NewStatusServer(config.StatusServer, coordinator, metrics, WithStatusServerLogger(logger))
		eg.Go(func() error {
			return server.Start()
		})
		eg.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), statusServerShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		defer stopServer()
		logger.Info("starting source pipelines...", loglib.Fields{"sources": len(config.Sources)})
		return coordinator.Run(runCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newCheckpointStore(ctx context.Context, logger loglib.Logger, config *Config, instrumentation *otel.Instrumentation) (checkpointer.Store, error) {
	var store checkpointer.Store
	switch {
	case config.Checkpoint.Postgres != nil:
		pgStore, err := pgcheckpoint.New(ctx, config.Checkpoint.Postgres)
		if err != nil {
			return nil, fmt.Errorf("error setting up postgres checkpoint store: %w", err)
		}
		store = pgStore
	case config.Checkpoint.Pebble != nil:
		pebbleStore, err := pebblecheckpoint.New(config.Checkpoint.Pebble, pebblecheckpoint.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("error setting up pebble checkpoint store: %w", err)
		}
		store = pebbleStore
	default:
		logger.Warn(nil, "using in memory checkpoints, positions will be lost on restart")
		store = memorycheckpoint.New()
	}

	store = checkpointretrier.New(store, config.Retries.Checkpoint, checkpointretrier.WithLogger(logger))

	instrumented, err := checkpointinstrumentation.NewStore(store, instrumentation)
	if err != nil {
		store.Close()
		return nil, err
	}
	return instrumented, nil
}

func newSinkStore(logger loglib.Logger, config *Config, instrumentation *otel.Instrumentation) (sink.Store, error) {
	searchStore, err := store.NewStore(config.Sink.Store, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("error setting up search store: %w", err)
	}

	var sinkStore sink.Store = sink.NewStoreRetrier(searchStore, &config.Retries.Sink, sink.WithStoreLogger(logger))
	return sinkinstrumentation.NewStore(sinkStore, instrumentation)
}

func newQuarantine(logger loglib.Logger, config *Config) (quarantine.Quarantine, error) {
	if config.Quarantine.Kafka == nil {
		return quarantine.NewLog(logger), nil
	}
	q, err := quarantine.NewKafka(*config.Quarantine.Kafka, logger)
	if err != nil {
		return nil, fmt.Errorf("error setting up kafka quarantine: %w", err)
	}
	return q, nil
}

func newSources(logger loglib.Logger, config *Config, instrumentation *otel.Instrumentation) []Source {
	sources := make([]Source, 0, len(config.Sources))
	for i := range config.Sources {
		srcCfg := config.Sources[i]
		id := srcCfg.SourceID()
		sources = append(sources, Source{
			ID:     id,
			Tables: srcCfg.Tables,
			Open: func(ctx context.Context) (replication.Handler, error) {
				return newReplicationHandler(ctx, logger, id, &srcCfg, config.Retries, instrumentation)
			},
		})
	}
	return sources
}

func newReplicationHandler(ctx context.Context, logger loglib.Logger, sourceID string, srcCfg *SourceConfig, retries RetryConfig, instrumentation *otel.Instrumentation) (replication.Handler, error) {
	sourceLogger := loglib.ForSource(logger, "replication", sourceID)
	mysqlHandler, err := mysqlreplication.NewHandler(ctx, &srcCfg.MySQL, mysqlreplication.WithLogger(sourceLogger))
	if err != nil {
		return nil, fmt.Errorf("error setting up mysql replication handler: %w", err)
	}

	// add retry layer to the replication handler
	var handler replication.Handler = replicationretrier.NewHandler(
		mysqlHandler,
		retries.Replication,
		replicationretrier.WithLogger(sourceLogger))

	instrumented, err := replicationinstrumentation.NewHandler(handler, sourceID, instrumentation)
	if err != nil {
		handler.Close()
		return nil, err
	}
	return instrumented, nil
}
