// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"

	mysqllib "github.com/xataio/mystream/internal/mysql"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	pebblecheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/pebble"
	pgcheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/postgres"
)

// StatusChecker validates a pipeline configuration against the external
// systems it depends on: the sources must be reachable and stream row
// events, and the checkpoint store must be readable.
type StatusChecker struct {
	connBuilder        func(context.Context, *mysqllib.ConnConfig) (binlogFormatReader, error)
	checkpointsBuilder func(context.Context, *CheckpointConfig) (checkpointer.Store, error)
}

type binlogFormatReader interface {
	BinlogFormat(ctx context.Context) (string, error)
	Close() error
}

const (
	backendPostgres = "postgres"
	backendPebble   = "pebble"
	backendMemory   = "memory"

	memoryCheckpointsMsg = "checkpoints are kept in memory and lost on restart"
)

var errNoCheckpointBackend = errors.New("no checkpoint store configured")

func NewStatusChecker() *StatusChecker {
	return &StatusChecker{
		connBuilder: func(ctx context.Context, cfg *mysqllib.ConnConfig) (binlogFormatReader, error) {
			return mysqllib.NewConn(ctx, cfg)
		},
		checkpointsBuilder: openCheckpointStore,
	}
}

// Status checks the configuration, every source and the checkpoint store.
// Check failures are reported in the status, the error is only returned
// when the checks themselves could not run.
func (s *StatusChecker) Status(ctx context.Context, config *Config) (*Status, error) {
	if config == nil {
		return nil, errors.New("missing configuration")
	}

	status := &Status{
		Config:      s.configStatus(config),
		Checkpoints: s.checkpointsStatus(ctx, &config.Checkpoint),
	}
	for i := range config.Sources {
		status.Sources = append(status.Sources, s.sourceCheck(ctx, &config.Sources[i]))
	}
	return status, nil
}

// configStatus validates if the configuration provided is valid.
func (s *StatusChecker) configStatus(config *Config) *ConfigStatus {
	if err := config.IsValid(); err != nil {
		return &ConfigStatus{
			Valid:  false,
			Errors: []string{err.Error()},
		}
	}

	return &ConfigStatus{
		Valid: true,
	}
}

func (s *StatusChecker) sourceCheck(ctx context.Context, src *SourceConfig) *SourceCheck {
	check := &SourceCheck{SourceID: src.SourceID()}

	conn, err := s.connBuilder(ctx, &src.MySQL.Conn)
	if err != nil {
		check.Errors = append(check.Errors, err.Error())
		return check
	}
	defer conn.Close()
	check.Reachable = true

	format, err := conn.BinlogFormat(ctx)
	if err != nil {
		check.Errors = append(check.Errors, err.Error())
		return check
	}
	check.BinlogFormat = format
	if format != rowBinlogFormat {
		check.Errors = append(check.Errors, fmt.Sprintf("%s, got %s", errBinlogFormat, format))
	}
	return check
}

func (s *StatusChecker) checkpointsStatus(ctx context.Context, cfg *CheckpointConfig) *CheckpointsStatus {
	status := &CheckpointsStatus{Backend: checkpointBackend(cfg)}
	if cfg.Memory {
		status.Errors = []string{memoryCheckpointsMsg}
		return status
	}

	store, err := s.checkpointsBuilder(ctx, cfg)
	if err != nil {
		status.Errors = []string{err.Error()}
		return status
	}
	defer store.Close()

	records, err := store.List(ctx)
	if err != nil {
		status.Errors = []string{err.Error()}
		return status
	}
	status.Records = records
	return status
}

func checkpointBackend(cfg *CheckpointConfig) string {
	switch {
	case cfg.Postgres != nil:
		return backendPostgres
	case cfg.Pebble != nil:
		return backendPebble
	case cfg.Memory:
		return backendMemory
	default:
		return "none"
	}
}

func openCheckpointStore(ctx context.Context, cfg *CheckpointConfig) (checkpointer.Store, error) {
	switch {
	case cfg.Postgres != nil:
		return pgcheckpoint.New(ctx, &pgcheckpoint.Config{URL: cfg.Postgres.URL})
	case cfg.Pebble != nil:
		return pebblecheckpoint.New(cfg.Pebble)
	default:
		return nil, errNoCheckpointBackend
	}
}
