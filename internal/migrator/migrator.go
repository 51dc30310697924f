// SPDX-License-Identifier: Apache-2.0

package migrator

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrator applies the embedded sql migrations of a store to a postgres
// database. Each store keeps its own migrations table in the mystream schema.
type Migrator struct {
	m *migrate.Migrate
}

type MigrationStatus struct {
	Version uint
	Dirty   bool
}

const migrationsSchema = "mystream"

var ErrNoMigration = errors.New("no migration found")

func NewPGMigrator(pgURL string, migrations fs.FS, tableName string) (*Migrator, error) {
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	dbURL, err := migrationsURL(pgURL, tableName)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies all the pending migrations. It is a noop when the schema is up
// to date.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("reverting migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Status() (*MigrationStatus, error) {
	version, dirty, err := m.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil, ErrNoMigration
		}
		return nil, err
	}
	return &MigrationStatus{Version: version, Dirty: dirty}, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// migrationsURL converts the postgres url into one for the pgx migrate
// driver, with a schema qualified migrations table so the search path of the
// connection doesn't matter.
func migrationsURL(pgURL, tableName string) (string, error) {
	u, err := url.Parse(pgURL)
	if err != nil {
		return "", fmt.Errorf("parsing postgres url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported postgres url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("x-migrations-table", fmt.Sprintf("%q.%q", migrationsSchema, tableName))
	q.Set("x-migrations-table-quoted", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
