// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xataio/mystream/internal/migrator"
	pglib "github.com/xataio/mystream/internal/postgres"
	pgmigrations "github.com/xataio/mystream/migrations/postgres"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
)

// Store persists the checkpoints in a postgres table, one row per source.
// Commits are single statement upserts that only apply when the position
// moves forward.
type Store struct {
	querier pglib.Querier
}

type Config struct {
	URL string
	// InitSchema runs the checkpoint table migrations on start.
	InitSchema bool
}

const (
	migrationsTable = "checkpoint_migrations"

	createSchemaQuery = `CREATE SCHEMA IF NOT EXISTS mystream`
	getQuery          = `SELECT position FROM mystream.checkpoints WHERE source_id = $1`
	listQuery         = `SELECT source_id, position, updated_at FROM mystream.checkpoints ORDER BY source_id`
	commitQuery       = `INSERT INTO mystream.checkpoints(source_id, position, version, updated_at)
		VALUES($1, $2, $3, now())
		ON CONFLICT (source_id) DO UPDATE
		SET position = EXCLUDED.position, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
		WHERE mystream.checkpoints.version < EXCLUDED.version`
)

func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: missing postgres checkpoint url", cdc.ErrInvalidConfig)
	}

	pool, err := pglib.NewConnPool(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.InitSchema {
		if err := InitSchema(ctx, pool, cfg.URL); err != nil {
			pool.Close(ctx)
			return nil, err
		}
	}

	return NewWithQuerier(pool), nil
}

func NewWithQuerier(querier pglib.Querier) *Store {
	return &Store{querier: querier}
}

// InitSchema creates the checkpoints table if it doesn't exist yet.
func InitSchema(ctx context.Context, querier pglib.Querier, url string) error {
	// the migrations table lives in the schema, it must exist beforehand
	if _, err := querier.Exec(ctx, createSchemaQuery); err != nil {
		return fmt.Errorf("creating mystream schema: %w", err)
	}

	m, err := migrator.NewPGMigrator(url, pgmigrations.FS, migrationsTable)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up()
}

func (s *Store) Get(ctx context.Context, sourceID string) (*cdc.Position, error) {
	var raw string
	if err := s.querier.QueryRow(ctx, []any{&raw}, getQuery, sourceID); err != nil {
		if errors.Is(err, pglib.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint of %s: %w", sourceID, classify(err))
	}

	pos, err := cdc.ParsePosition(raw)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint of %s: %w", sourceID, err)
	}
	return &pos, nil
}

func (s *Store) Commit(ctx context.Context, sourceID string, position cdc.Position) error {
	if sourceID == "" {
		return checkpointer.ErrInvalidSourceID
	}
	if err := position.Validate(); err != nil {
		return err
	}

	if _, err := s.querier.Exec(ctx, commitQuery, sourceID, position.String(), position.Version()); err != nil {
		return fmt.Errorf("committing checkpoint of %s: %w", sourceID, classify(err))
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]checkpointer.Record, error) {
	rows, err := s.querier.Query(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", classify(err))
	}
	defer rows.Close()

	records := []checkpointer.Record{}
	for rows.Next() {
		var sourceID, raw string
		var updatedAt time.Time
		if err := rows.Scan(&sourceID, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		pos, err := cdc.ParsePosition(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing checkpoint of %s: %w", sourceID, err)
		}
		records = append(records, checkpointer.Record{
			SourceID:  sourceID,
			Position:  pos,
			UpdatedAt: updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	return records, nil
}

// classify tags the postgres errors with the pipeline error kinds, so access
// errors are not retried.
func classify(err error) error {
	var accessErr *pglib.AccessError
	switch {
	case errors.As(err, &accessErr):
		return fmt.Errorf("%w: %w", cdc.ErrInvalidConfig, err)
	case pglib.IsTransient(err):
		return fmt.Errorf("%w: %w", cdc.ErrTransientConnection, err)
	default:
		return err
	}
}

func (s *Store) Close() error {
	return s.querier.Close(context.Background())
}
