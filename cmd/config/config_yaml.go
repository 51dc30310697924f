// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/xataio/mystream/internal/kafka"
	mysqllib "github.com/xataio/mystream/internal/mysql"
	"github.com/xataio/mystream/pkg/backoff"
	pebblecheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/pebble"
	pgcheckpoint "github.com/xataio/mystream/pkg/cdc/checkpointer/postgres"
	mysqlreplication "github.com/xataio/mystream/pkg/cdc/replication/mysql"
	"github.com/xataio/mystream/pkg/cdc/router"
	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/cdc/sink/quarantine"
	"github.com/xataio/mystream/pkg/cdc/sink/store"
	"github.com/xataio/mystream/pkg/otel"
	"github.com/xataio/mystream/pkg/stream"
)

type YAMLConfig struct {
	Sources         []SourceConfig        `mapstructure:"sources" yaml:"sources"`
	Sink            SinkConfig            `mapstructure:"sink" yaml:"sink"`
	Checkpoint      CheckpointConfig      `mapstructure:"checkpoint" yaml:"checkpoint"`
	Batch           *BatchConfig          `mapstructure:"batch" yaml:"batch"`
	Retries         RetriesConfig         `mapstructure:"retries" yaml:"retries"`
	Quarantine      QuarantineConfig      `mapstructure:"quarantine" yaml:"quarantine"`
	Status          *StatusConfig         `mapstructure:"status" yaml:"status"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`
}

type SourceConfig struct {
	ID     string      `mapstructure:"id" yaml:"id"`
	MySQL  MySQLConfig `mapstructure:"mysql" yaml:"mysql"`
	Tables []string    `mapstructure:"tables" yaml:"tables"`
}

type MySQLConfig struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	User            string `mapstructure:"user" yaml:"user"`
	Password        string `mapstructure:"password" yaml:"password"`
	Database        string `mapstructure:"database" yaml:"database"`
	ServerID        int    `mapstructure:"server_id" yaml:"server_id"`
	Flavor          string `mapstructure:"flavor" yaml:"flavor"`
	StartPosition   string `mapstructure:"start_position" yaml:"start_position"`
	DialTimeout     int    `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	HeartbeatPeriod int    `mapstructure:"heartbeat_period" yaml:"heartbeat_period"`
	ReadTimeout     int    `mapstructure:"read_timeout" yaml:"read_timeout"`
}

type SinkConfig struct {
	Engine              string   `mapstructure:"engine" yaml:"engine"`
	URL                 string   `mapstructure:"url" yaml:"url"`
	Index               string   `mapstructure:"index" yaml:"index"`
	KeywordFields       []string `mapstructure:"keyword_fields" yaml:"keyword_fields"`
	WriteTimeout        int      `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxConcurrentWrites int      `mapstructure:"max_concurrent_writes" yaml:"max_concurrent_writes"`
}

type CheckpointConfig struct {
	Postgres *PostgresCheckpointConfig `mapstructure:"postgres" yaml:"postgres"`
	Pebble   *PebbleCheckpointConfig   `mapstructure:"pebble" yaml:"pebble"`
	Memory   bool                      `mapstructure:"memory" yaml:"memory"`
}

type PostgresCheckpointConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	InitSchema bool   `mapstructure:"init_schema" yaml:"init_schema"`
}

type PebbleCheckpointConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type BatchConfig struct {
	Size            int `mapstructure:"size" yaml:"size"`
	Window          int `mapstructure:"window" yaml:"window"`
	MaxRetries      int `mapstructure:"max_retries" yaml:"max_retries"`
	MaxEventRetries int `mapstructure:"max_event_retries" yaml:"max_event_retries"`
	RetryInterval   int `mapstructure:"retry_interval" yaml:"retry_interval"`
	EventBufferSize int `mapstructure:"event_buffer_size" yaml:"event_buffer_size"`
}

type RetriesConfig struct {
	Replication *BackoffConfig `mapstructure:"replication" yaml:"replication"`
	Checkpoint  *BackoffConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Sink        *BackoffConfig `mapstructure:"sink" yaml:"sink"`
	Recovery    *BackoffConfig `mapstructure:"recovery" yaml:"recovery"`
}

type BackoffConfig struct {
	Exponential *ExponentialBackoffConfig `mapstructure:"exponential" yaml:"exponential"`
	Constant    *ConstantBackoffConfig    `mapstructure:"constant" yaml:"constant"`
}

type ExponentialBackoffConfig struct {
	MaxRetries      int `mapstructure:"max_retries" yaml:"max_retries"`
	InitialInterval int `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     int `mapstructure:"max_interval" yaml:"max_interval"`
}

type ConstantBackoffConfig struct {
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	Interval   int `mapstructure:"interval" yaml:"interval"`
}

type QuarantineConfig struct {
	Kafka *KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Servers []string    `mapstructure:"servers" yaml:"servers"`
	Topic   TopicConfig `mapstructure:"topic" yaml:"topic"`
	TLS     *TLSConfig  `mapstructure:"tls" yaml:"tls"`
}

type TopicConfig struct {
	Name              string `mapstructure:"name" yaml:"name"`
	Partitions        int    `mapstructure:"partitions" yaml:"partitions"`
	ReplicationFactor int    `mapstructure:"replication_factor" yaml:"replication_factor"`
	AutoCreate        bool   `mapstructure:"auto_create" yaml:"auto_create"`
}

type TLSConfig struct {
	CACert     string `mapstructure:"ca_cert" yaml:"ca_cert"`
	ClientCert string `mapstructure:"client_cert" yaml:"client_cert"`
	ClientKey  string `mapstructure:"client_key" yaml:"client_key"`
}

type StatusConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type InstrumentationConfig struct {
	Metrics *MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Traces  *TracesConfig  `mapstructure:"traces" yaml:"traces"`
}

type MetricsConfig struct {
	Endpoint           string `mapstructure:"endpoint" yaml:"endpoint"`
	CollectionInterval int    `mapstructure:"collection_interval" yaml:"collection_interval"`
}

type TracesConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// search engines
const (
	elasticsearchEngine = "elasticsearch"
	opensearchEngine    = "opensearch"
)

var (
	errUnsupportedSearchEngine = errors.New("unsupported search engine, must be one of 'opensearch' or 'elasticsearch'")
	errInvalidMySQLPort        = errors.New("mysql port out of range")
	errInvalidServerID         = errors.New("mysql server id must fit in an unsigned 32 bit integer")
)

func (c *YAMLConfig) toStreamConfig() (*stream.Config, error) {
	sources, err := c.parseSourcesConfig()
	if err != nil {
		return nil, fmt.Errorf("parsing sources config: %w", err)
	}

	sinkCfg, err := c.Sink.parseSinkConfig()
	if err != nil {
		return nil, fmt.Errorf("parsing sink config: %w", err)
	}

	return &stream.Config{
		Sources:         sources,
		Sink:            sinkCfg,
		Checkpoint:      c.Checkpoint.parseCheckpointConfig(),
		Router:          c.Batch.parseRouterConfig(),
		Retries:         c.Retries.parseRetryConfig(),
		Quarantine:      c.Quarantine.parseQuarantineConfig(),
		StatusServer:    c.Status.parseStatusServerConfig(),
		EventBufferSize: c.Batch.eventBufferSize(),
	}, nil
}

func (c *YAMLConfig) parseSourcesConfig() ([]stream.SourceConfig, error) {
	sources := make([]stream.SourceConfig, 0, len(c.Sources))
	for i, src := range c.Sources {
		mysqlCfg, err := src.MySQL.parseMySQLConfig()
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		sources = append(sources, stream.SourceConfig{
			ID:     src.ID,
			MySQL:  mysqlCfg,
			Tables: src.Tables,
		})
	}
	return sources, nil
}

func (c *MySQLConfig) parseMySQLConfig() (mysqlreplication.Config, error) {
	if c.Port < 0 || c.Port > 65535 {
		return mysqlreplication.Config{}, errInvalidMySQLPort
	}
	if c.ServerID < 0 || uint64(c.ServerID) > uint64(^uint32(0)) {
		return mysqlreplication.Config{}, errInvalidServerID
	}
	return mysqlreplication.Config{
		Conn: mysqllib.ConnConfig{
			Host:        c.Host,
			Port:        uint16(c.Port),
			User:        c.User,
			Password:    c.Password,
			DialTimeout: time.Duration(c.DialTimeout) * time.Second,
		},
		Schema:          c.Database,
		ServerID:        uint32(c.ServerID),
		Flavor:          c.Flavor,
		StartPosition:   mysqlreplication.StartPosition(c.StartPosition),
		HeartbeatPeriod: time.Duration(c.HeartbeatPeriod) * time.Second,
		ReadTimeout:     time.Duration(c.ReadTimeout) * time.Second,
	}, nil
}

func (c *SinkConfig) parseSinkConfig() (stream.SinkConfig, error) {
	storeCfg := store.Config{
		IndexName:     c.Index,
		KeywordFields: c.KeywordFields,
	}

	switch c.Engine {
	case elasticsearchEngine:
		storeCfg.ElasticsearchURL = c.URL
	case opensearchEngine:
		storeCfg.OpenSearchURL = c.URL
	default:
		return stream.SinkConfig{}, errUnsupportedSearchEngine
	}

	return stream.SinkConfig{
		Store: storeCfg,
		Applier: sink.ApplierConfig{
			WriteTimeout:        time.Duration(c.WriteTimeout) * time.Millisecond,
			MaxConcurrentWrites: int64(c.MaxConcurrentWrites),
		},
	}, nil
}

func (c *CheckpointConfig) parseCheckpointConfig() stream.CheckpointConfig {
	cfg := stream.CheckpointConfig{
		Memory: c.Memory,
	}
	if c.Postgres != nil {
		cfg.Postgres = &pgcheckpoint.Config{
			URL:        c.Postgres.URL,
			InitSchema: c.Postgres.InitSchema,
		}
	}
	if c.Pebble != nil {
		cfg.Pebble = &pebblecheckpoint.Config{
			Dir: c.Pebble.Dir,
		}
	}
	return cfg
}

func (bc *BatchConfig) parseRouterConfig() router.Config {
	if bc == nil {
		return router.Config{}
	}
	return router.Config{
		BatchSize:       bc.Size,
		BatchWindow:     time.Duration(bc.Window) * time.Millisecond,
		MaxBatchRetries: uint(max(bc.MaxRetries, 0)),
		MaxEventRetries: uint(max(bc.MaxEventRetries, 0)),
		RetryInterval:   time.Duration(bc.RetryInterval) * time.Millisecond,
	}
}

func (bc *BatchConfig) eventBufferSize() int {
	if bc == nil {
		return 0
	}
	return bc.EventBufferSize
}

func (c *RetriesConfig) parseRetryConfig() stream.RetryConfig {
	return stream.RetryConfig{
		Replication: c.Replication.parseBackoffConfig(),
		Checkpoint:  c.Checkpoint.parseBackoffConfig(),
		Sink: sink.StoreRetryConfig{
			Backoff: c.Sink.parseBackoffConfig(),
		},
		Recovery: c.Recovery.parseBackoffConfig(),
	}
}

func (c *QuarantineConfig) parseQuarantineConfig() stream.QuarantineConfig {
	if c.Kafka == nil {
		return stream.QuarantineConfig{}
	}
	return stream.QuarantineConfig{
		Kafka: &quarantine.KafkaConfig{
			Kafka: kafka.ConnConfig{
				Servers: c.Kafka.Servers,
				Topic: kafka.TopicConfig{
					Name:              c.Kafka.Topic.Name,
					NumPartitions:     c.Kafka.Topic.Partitions,
					ReplicationFactor: c.Kafka.Topic.ReplicationFactor,
					AutoCreate:        c.Kafka.Topic.AutoCreate,
				},
				TLS: c.Kafka.TLS.parseTLSConfig(),
			},
		},
	}
}

func (c *StatusConfig) parseStatusServerConfig() *stream.StatusServerConfig {
	if c == nil {
		return nil
	}
	return &stream.StatusServerConfig{
		Address:      c.Address,
		ReadTimeout:  time.Duration(c.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(c.WriteTimeout) * time.Second,
	}
}

func (c *InstrumentationConfig) toOtelConfig() (*otel.Config, error) {
	cfg := &otel.Config{}
	if c.Metrics != nil {
		cfg.Metrics = &otel.MetricsConfig{
			Endpoint:           c.Metrics.Endpoint,
			CollectionInterval: time.Duration(c.Metrics.CollectionInterval) * time.Second,
		}
	}
	if c.Traces != nil {
		if c.Traces.SampleRatio < 0 || c.Traces.SampleRatio > 1 {
			return nil, errInvalidSampleRatioValue
		}
		cfg.Traces = &otel.TracesConfig{
			Endpoint:    c.Traces.Endpoint,
			SampleRatio: c.Traces.SampleRatio,
		}
	}
	return cfg, nil
}

func (t *TLSConfig) parseTLSConfig() *kafka.TLSConfig {
	if t == nil {
		return nil
	}
	return &kafka.TLSConfig{
		Enabled:        true,
		CaCertFile:     t.CACert,
		ClientCertFile: t.ClientCert,
		ClientKeyFile:  t.ClientKey,
	}
}

func (bo *BackoffConfig) parseBackoffConfig() backoff.Config {
	if bo == nil {
		return backoff.Config{}
	}
	return backoff.Config{
		Exponential: bo.parseExponentialBackoffConfig(),
		Constant:    bo.parseConstantBackoffConfig(),
	}
}

func (bo *BackoffConfig) parseExponentialBackoffConfig() *backoff.ExponentialConfig {
	if bo.Exponential == nil {
		return nil
	}
	return &backoff.ExponentialConfig{
		InitialInterval: time.Duration(bo.Exponential.InitialInterval) * time.Millisecond,
		MaxInterval:     time.Duration(bo.Exponential.MaxInterval) * time.Millisecond,
		MaxRetries:      uint(max(bo.Exponential.MaxRetries, 0)),
	}
}

func (bo *BackoffConfig) parseConstantBackoffConfig() *backoff.ConstantConfig {
	if bo.Constant == nil {
		return nil
	}
	return &backoff.ConstantConfig{
		Interval:   time.Duration(bo.Constant.Interval) * time.Millisecond,
		MaxRetries: uint(max(bo.Constant.MaxRetries, 0)),
	}
}
