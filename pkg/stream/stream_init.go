// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"

	mysqllib "github.com/xataio/mystream/internal/mysql"
	pglib "github.com/xataio/mystream/internal/postgres"
	"github.com/xataio/mystream/pkg/cdc"
	pgcheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/postgres"
	"github.com/xataio/mystream/pkg/cdc/sink/store"
	loglib "github.com/xataio/mystream/pkg/log"
)

const rowBinlogFormat = "ROW"

var errBinlogFormat = errors.New("source binary log format must be ROW")

// Init prepares the external state the pipeline relies on: the checkpoint
// table when checkpoints are stored in postgres, and the unified index. It
// also checks every source streams row events. It can be run more than once.
func Init(ctx context.Context, logger loglib.Logger, config *Config) error {
	if err := config.IsValid(); err != nil {
		return fmt.Errorf("incompatible configuration: %w", err)
	}

	for i := range config.Sources {
		if err := checkBinlogFormat(ctx, &config.Sources[i]); err != nil {
			return err
		}
	}

	if pgCfg := config.Checkpoint.Postgres; pgCfg != nil {
		pool, err := pglib.NewConnPool(ctx, pgCfg.URL)
		if err != nil {
			return fmt.Errorf("connecting to checkpoint database: %w", err)
		}
		defer pool.Close(ctx)

		if err := pgcheckpoint.InitSchema(ctx, pool, pgCfg.URL); err != nil {
			return fmt.Errorf("failed to create checkpoint schema: %w", err)
		}
		logger.Info("checkpoint schema ready")
	}

	searchStore, err := store.NewStore(config.Sink.Store, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("error setting up search store: %w", err)
	}
	if err := searchStore.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to create index %s: %w", searchStore.IndexName(), err)
	}
	logger.Info("index ready", loglib.Fields{"index": searchStore.IndexName()})

	return nil
}

func checkBinlogFormat(ctx context.Context, src *SourceConfig) error {
	conn, err := mysqllib.NewConn(ctx, &src.MySQL.Conn)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.SourceID(), err)
	}
	defer conn.Close()

	format, err := conn.BinlogFormat(ctx)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.SourceID(), err)
	}
	if format != rowBinlogFormat {
		return fmt.Errorf("%w: source %s: %w, got %s", cdc.ErrInvalidConfig, src.SourceID(), errBinlogFormat, format)
	}
	return nil
}
