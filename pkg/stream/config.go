// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	pebblecheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/pebble"
	pgcheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/postgres"
	mysqlreplication "github.com/xataio/mystream/pkg/cdc/replication/mysql"
	"github.com/xataio/mystream/pkg/cdc/router"
	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/cdc/sink/quarantine"
	"github.com/xataio/mystream/pkg/cdc/sink/store"
)

type Config struct {
	Sources    []SourceConfig
	Sink       SinkConfig
	Checkpoint CheckpointConfig
	Router     router.Config
	Retries    RetryConfig
	Quarantine QuarantineConfig
	// StatusServer is disabled when nil.
	StatusServer *StatusServerConfig
	// EventBufferSize is the number of events read ahead of the router for
	// each source. Defaults to 1000.
	EventBufferSize int
}

type SourceConfig struct {
	// ID identifies the source in the checkpoints and the index documents.
	// Defaults to the MySQL database name.
	ID     string
	MySQL  mysqlreplication.Config
	Tables []string
}

type SinkConfig struct {
	Store   store.Config
	Applier sink.ApplierConfig
}

type CheckpointConfig struct {
	Postgres *pgcheckpoint.Config
	Pebble   *pebblecheckpoint.Config
	// Memory keeps the checkpoints in process memory, they are lost on
	// restart.
	Memory bool
}

type RetryConfig struct {
	Replication backoff.Config
	Checkpoint  backoff.Config
	Sink        sink.StoreRetryConfig
	// Recovery drives the reopening of a failed source. A source that
	// exhausts it is stopped.
	Recovery backoff.Config
}

type QuarantineConfig struct {
	Kafka *quarantine.KafkaConfig
}

type StatusServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultEventBufferSize     = 1000
	defaultStatusServerAddress = ":9900"
	defaultStatusServerTimeout = 5 * time.Second
)

var (
	errNoSources          = errors.New("need at least one source configured")
	errDuplicateSource    = errors.New("duplicate source id")
	errCheckpointBackends = errors.New("need exactly one checkpoint store configured")
	errSinkBackends       = errors.New("need exactly one of opensearch or elasticsearch url")
)

// IsValid checks the configuration can be used to start the pipeline.
// Every error wraps cdc.ErrInvalidConfig.
func (c *Config) IsValid() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: %w", cdc.ErrInvalidConfig, errNoSources)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.MySQL.Validate(); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		id := src.SourceID()
		if _, found := seen[id]; found {
			return fmt.Errorf("%w: %w: %s", cdc.ErrInvalidConfig, errDuplicateSource, id)
		}
		seen[id] = struct{}{}
	}

	if (c.Sink.Store.OpenSearchURL == "") == (c.Sink.Store.ElasticsearchURL == "") {
		return fmt.Errorf("%w: %w", cdc.ErrInvalidConfig, errSinkBackends)
	}

	backends := 0
	for _, set := range []bool{c.Checkpoint.Postgres != nil, c.Checkpoint.Pebble != nil, c.Checkpoint.Memory} {
		if set {
			backends++
		}
	}
	if backends != 1 {
		return fmt.Errorf("%w: %w", cdc.ErrInvalidConfig, errCheckpointBackends)
	}

	if c.Router.BatchSize < 0 || c.Router.BatchWindow < 0 || c.EventBufferSize < 0 {
		return fmt.Errorf("%w: batch limits must not be negative", cdc.ErrInvalidConfig)
	}

	return nil
}

// SourceID returns the configured id, or the MySQL database name if unset.
func (s *SourceConfig) SourceID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.MySQL.Schema
}

func (c *Config) eventBufferSize() int {
	if c.EventBufferSize > 0 {
		return c.EventBufferSize
	}
	return defaultEventBufferSize
}

func (c *StatusServerConfig) address() string {
	if c.Address != "" {
		return c.Address
	}
	return defaultStatusServerAddress
}

func (c *StatusServerConfig) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return defaultStatusServerTimeout
}

func (c *StatusServerConfig) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return defaultStatusServerTimeout
}

func (c *RetryConfig) recoveryBackoff() *backoff.Config {
	if c.Recovery.IsSet() {
		return &c.Recovery
	}
	return &backoff.Config{
		Exponential: &backoff.ExponentialConfig{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			MaxRetries:      10,
		},
	}
}
