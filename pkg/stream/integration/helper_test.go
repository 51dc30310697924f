// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/internal/log/zerolog"
	mysqllib "github.com/xataio/mystream/internal/mysql"
	"github.com/xataio/mystream/internal/searchstore"
	"github.com/xataio/mystream/internal/searchstore/elasticsearch"
	"github.com/xataio/mystream/internal/testcontainers"
	pgcheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/postgres"
	mysqlreplication "github.com/xataio/mystream/pkg/cdc/replication/mysql"
	"github.com/xataio/mystream/pkg/cdc/router"
	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/cdc/sink/store"
	loglib "github.com/xataio/mystream/pkg/log"
	"github.com/xataio/mystream/pkg/stream"
)

var (
	mysqlAddr        testcontainers.MySQLAddress
	pgurl            string
	elasticsearchURL string
)

const (
	testTable       = "t_user"
	eventualTimeout = 30 * time.Second
	eventualTick    = 200 * time.Millisecond
)

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(integrationTestsEnv) == "" {
		t.Skip("skipping integration test...")
	}
}

func testLogger() loglib.Logger {
	return zerolog.NewStdLogger(zerolog.NewLogger(&zerolog.Config{
		LogLevel: "debug",
	}))
}

func testConnConfig(database string) mysqllib.ConnConfig {
	return mysqllib.ConnConfig{
		Host:     mysqlAddr.Host,
		Port:     mysqlAddr.Port,
		User:     testcontainers.MySQLUser,
		Password: testcontainers.MySQLPassword,
		Database: database,
	}
}

func testStreamConfig(index string, databases []string, serverID uint32) *stream.Config {
	sources := make([]stream.SourceConfig, 0, len(databases))
	for i, db := range databases {
		sources = append(sources, stream.SourceConfig{
			MySQL: mysqlreplication.Config{
				Conn:          testConnConfig(db),
				Schema:        db,
				ServerID:      serverID + uint32(i),
				StartPosition: mysqlreplication.StartPositionEarliest,
			},
			Tables: []string{testTable},
		})
	}

	return &stream.Config{
		Sources: sources,
		Sink: stream.SinkConfig{
			Store: store.Config{
				ElasticsearchURL: elasticsearchURL,
				IndexName:        index,
			},
		},
		Checkpoint: stream.CheckpointConfig{
			Postgres: &pgcheckpoint.Config{
				URL: pgurl,
			},
		},
		Router: router.Config{
			BatchSize:   10,
			BatchWindow: 100 * time.Millisecond,
		},
	}
}

// runStream starts the pipeline in the background and returns a function that
// stops it and waits for it to return.
func runStream(t *testing.T, cfg *stream.Config) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, testLogger(), cfg, nil)
	}()

	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(eventualTimeout):
			t.Fatal("timed out waiting for the stream to stop")
		}
	}
}

func createDatabase(t *testing.T, ctx context.Context, database string) {
	t.Helper()
	execQuery(t, ctx, "", fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database))
	execQuery(t, ctx, database, fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"id BIGINT PRIMARY KEY, "+
		"username VARCHAR(64) NOT NULL, "+
		"email VARCHAR(128), "+
		"phone VARCHAR(32))", testTable))
}

func execQuery(t *testing.T, ctx context.Context, database, query string, args ...any) {
	t.Helper()
	cfg := testConnConfig(database)
	db, err := sql.Open("mysql", cfg.DSN())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, query, args...)
	require.NoError(t, err)
}

func newSearchClient(t *testing.T) searchstore.Client {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearchURL)
	require.NoError(t, err)
	return client
}

// getDocument refreshes the index before reading, so writes acknowledged by
// the bulk API are visible.
func getDocument(t *testing.T, ctx context.Context, client searchstore.Client, index, sourceID, key string) *searchstore.Document {
	t.Helper()
	exists, err := client.IndexExists(ctx, index)
	require.NoError(t, err)
	if !exists {
		return nil
	}
	require.NoError(t, client.RefreshIndex(ctx, index))

	doc, err := client.GetDocument(ctx, index, sink.DefaultIDHasher()(sourceID, key))
	require.NoError(t, err)
	return doc
}

func committedPosition(t *testing.T, ctx context.Context, sourceID string) bool {
	t.Helper()
	checkpoints, err := pgcheckpoint.New(ctx, &pgcheckpoint.Config{URL: pgurl})
	require.NoError(t, err)
	defer checkpoints.Close()

	pos, err := checkpoints.Get(ctx, sourceID)
	require.NoError(t, err)
	return pos != nil
}
