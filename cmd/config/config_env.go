// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/viper"
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

// defaults of the env layout, one source per database of the same server.
const (
	defaultMySQLHost      = "mysql-data"
	defaultMySQLPort      = 3306
	defaultMySQLUser      = "root"
	defaultMySQLDatabases = "space_cloud_default,space_cloud_tenant1,space_cloud_tenant2"
	defaultMySQLTable     = "t_user"
	defaultMySQLServerID  = 1001
)

func envConfigToStreamConfig() (*stream.Config, error) {
	setEnvDefaults()

	return &stream.Config{
		Sources:         parseSourcesConfig(),
		Sink:            parseSinkConfig(),
		Checkpoint:      parseCheckpointConfig(),
		Router:          parseRouterConfig(),
		Retries:         parseRetryConfig(),
		Quarantine:      parseQuarantineConfig(),
		StatusServer:    parseStatusServerConfig(),
		EventBufferSize: viper.GetInt("MYSTREAM_EVENT_BUFFER_SIZE"),
	}, nil
}

func setEnvDefaults() {
	viper.SetDefault("MYSTREAM_MYSQL_HOST", defaultMySQLHost)
	viper.SetDefault("MYSTREAM_MYSQL_PORT", defaultMySQLPort)
	viper.SetDefault("MYSTREAM_MYSQL_USER", defaultMySQLUser)
	viper.SetDefault("MYSTREAM_MYSQL_DATABASES", defaultMySQLDatabases)
	viper.SetDefault("MYSTREAM_MYSQL_TABLE", defaultMySQLTable)
	viper.SetDefault("MYSTREAM_MYSQL_SERVER_ID", defaultMySQLServerID)
	viper.SetDefault("MYSTREAM_INDEX_NAME", store.DefaultIndexName)
}

// source parsing

// parseSourcesConfig returns one source per configured database. They share
// the connection settings, and each one gets its own replication server id
// counting up from the configured one.
func parseSourcesConfig() []stream.SourceConfig {
	databases := splitList(viper.GetString("MYSTREAM_MYSQL_DATABASES"))
	tables := splitList(viper.GetString("MYSTREAM_MYSQL_TABLE"))
	serverID := viper.GetUint32("MYSTREAM_MYSQL_SERVER_ID")

	sources := make([]stream.SourceConfig, 0, len(databases))
	for i, database := range databases {
		sources = append(sources, stream.SourceConfig{
			MySQL: mysqlreplication.Config{
				Conn: mysqllib.ConnConfig{
					Host:        viper.GetString("MYSTREAM_MYSQL_HOST"),
					Port:        uint16(viper.GetUint("MYSTREAM_MYSQL_PORT")),
					User:        viper.GetString("MYSTREAM_MYSQL_USER"),
					Password:    viper.GetString("MYSTREAM_MYSQL_PASSWORD"),
					DialTimeout: viper.GetDuration("MYSTREAM_MYSQL_DIAL_TIMEOUT"),
				},
				Schema:          database,
				ServerID:        serverID + uint32(i),
				Flavor:          viper.GetString("MYSTREAM_MYSQL_FLAVOR"),
				StartPosition:   mysqlreplication.StartPosition(viper.GetString("MYSTREAM_MYSQL_START_POSITION")),
				HeartbeatPeriod: viper.GetDuration("MYSTREAM_MYSQL_HEARTBEAT_PERIOD"),
				ReadTimeout:     viper.GetDuration("MYSTREAM_MYSQL_READ_TIMEOUT"),
			},
			Tables: tables,
		})
	}
	return sources
}

// sink parsing

func parseSinkConfig() stream.SinkConfig {
	return stream.SinkConfig{
		Store: store.Config{
			OpenSearchURL:    viper.GetString("MYSTREAM_OPENSEARCH_URL"),
			ElasticsearchURL: viper.GetString("MYSTREAM_ELASTICSEARCH_URL"),
			IndexName:        viper.GetString("MYSTREAM_INDEX_NAME"),
			KeywordFields:    splitList(viper.GetString("MYSTREAM_INDEX_KEYWORD_FIELDS")),
		},
		Applier: sink.ApplierConfig{
			WriteTimeout:        viper.GetDuration("MYSTREAM_SINK_WRITE_TIMEOUT"),
			MaxConcurrentWrites: viper.GetInt64("MYSTREAM_SINK_MAX_CONCURRENT_WRITES"),
		},
	}
}

func parseCheckpointConfig() stream.CheckpointConfig {
	cfg := stream.CheckpointConfig{
		Memory: viper.GetBool("MYSTREAM_CHECKPOINT_MEMORY"),
	}
	if url := viper.GetString("MYSTREAM_CHECKPOINT_POSTGRES_URL"); url != "" {
		cfg.Postgres = &pgcheckpoint.Config{
			URL:        url,
			InitSchema: viper.GetBool("MYSTREAM_CHECKPOINT_POSTGRES_INIT_SCHEMA"),
		}
	}
	if dir := viper.GetString("MYSTREAM_CHECKPOINT_PEBBLE_DIR"); dir != "" {
		cfg.Pebble = &pebblecheckpoint.Config{
			Dir: dir,
		}
	}
	return cfg
}

func parseRouterConfig() router.Config {
	return router.Config{
		BatchSize:       viper.GetInt("MYSTREAM_BATCH_SIZE"),
		BatchWindow:     viper.GetDuration("MYSTREAM_BATCH_WINDOW"),
		MaxBatchRetries: viper.GetUint("MYSTREAM_BATCH_MAX_RETRIES"),
		MaxEventRetries: viper.GetUint("MYSTREAM_BATCH_MAX_EVENT_RETRIES"),
		RetryInterval:   viper.GetDuration("MYSTREAM_BATCH_RETRY_INTERVAL"),
	}
}

func parseRetryConfig() stream.RetryConfig {
	return stream.RetryConfig{
		Replication: parseBackoffConfig("MYSTREAM_MYSQL_REPLICATION"),
		Checkpoint:  parseBackoffConfig("MYSTREAM_CHECKPOINT"),
		Sink: sink.StoreRetryConfig{
			Backoff: parseBackoffConfig("MYSTREAM_SINK_STORE"),
		},
		Recovery: parseBackoffConfig("MYSTREAM_RECOVERY"),
	}
}

func parseQuarantineConfig() stream.QuarantineConfig {
	servers := splitList(viper.GetString("MYSTREAM_QUARANTINE_KAFKA_SERVERS"))
	if len(servers) == 0 {
		return stream.QuarantineConfig{}
	}
	return stream.QuarantineConfig{
		Kafka: &quarantine.KafkaConfig{
			Kafka: kafka.ConnConfig{
				Servers: servers,
				Topic: kafka.TopicConfig{
					Name:              viper.GetString("MYSTREAM_QUARANTINE_KAFKA_TOPIC_NAME"),
					NumPartitions:     viper.GetInt("MYSTREAM_QUARANTINE_KAFKA_TOPIC_PARTITIONS"),
					ReplicationFactor: viper.GetInt("MYSTREAM_QUARANTINE_KAFKA_TOPIC_REPLICATION_FACTOR"),
					AutoCreate:        viper.GetBool("MYSTREAM_QUARANTINE_KAFKA_TOPIC_AUTO_CREATE"),
				},
				TLS: parseTLSConfig("MYSTREAM_QUARANTINE_KAFKA"),
			},
		},
	}
}

func parseStatusServerConfig() *stream.StatusServerConfig {
	address := viper.GetString("MYSTREAM_STATUS_SERVER_ADDRESS")
	if address == "" {
		return nil
	}
	return &stream.StatusServerConfig{
		Address:      address,
		ReadTimeout:  viper.GetDuration("MYSTREAM_STATUS_SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("MYSTREAM_STATUS_SERVER_WRITE_TIMEOUT"),
	}
}

func parseBackoffConfig(prefix string) backoff.Config {
	return backoff.Config{
		Exponential: parseExponentialBackoffConfig(prefix),
		Constant:    parseConstantBackoffConfig(prefix),
	}
}

func parseExponentialBackoffConfig(prefix string) *backoff.ExponentialConfig {
	initialInterval := viper.GetDuration(fmt.Sprintf("%s_EXP_BACKOFF_INITIAL_INTERVAL", prefix))
	maxInterval := viper.GetDuration(fmt.Sprintf("%s_EXP_BACKOFF_MAX_INTERVAL", prefix))
	maxRetries := viper.GetUint(fmt.Sprintf("%s_EXP_BACKOFF_MAX_RETRIES", prefix))
	if initialInterval == 0 && maxInterval == 0 && maxRetries == 0 {
		return nil
	}
	return &backoff.ExponentialConfig{
		InitialInterval: initialInterval,
		MaxInterval:     maxInterval,
		MaxRetries:      maxRetries,
	}
}

func parseConstantBackoffConfig(prefix string) *backoff.ConstantConfig {
	interval := viper.GetDuration(fmt.Sprintf("%s_BACKOFF_INTERVAL", prefix))
	maxRetries := viper.GetUint(fmt.Sprintf("%s_BACKOFF_MAX_RETRIES", prefix))
	if interval == 0 && maxRetries == 0 {
		return nil
	}
	return &backoff.ConstantConfig{
		Interval:   interval,
		MaxRetries: maxRetries,
	}
}

func parseTLSConfig(prefix string) *kafka.TLSConfig {
	if !viper.GetBool(fmt.Sprintf("%s_TLS_ENABLED", prefix)) {
		return nil
	}
	return &kafka.TLSConfig{
		Enabled:        viper.GetBool(fmt.Sprintf("%s_TLS_ENABLED", prefix)),
		CaCertFile:     viper.GetString(fmt.Sprintf("%s_TLS_CA_CERT_FILE", prefix)),
		ClientCertFile: viper.GetString(fmt.Sprintf("%s_TLS_CLIENT_CERT_FILE", prefix)),
		ClientKeyFile:  viper.GetString(fmt.Sprintf("%s_TLS_CLIENT_KEY_FILE", prefix)),
	}
}

// instrumentation parsing

func envToOtelConfig() (*otel.Config, error) {
	cfg := &otel.Config{}

	if endpoint := viper.GetString("MYSTREAM_METRICS_ENDPOINT"); endpoint != "" {
		cfg.Metrics = &otel.MetricsConfig{
			Endpoint:           endpoint,
			CollectionInterval: viper.GetDuration("MYSTREAM_METRICS_COLLECTION_INTERVAL"),
		}
	}

	if endpoint := viper.GetString("MYSTREAM_TRACES_ENDPOINT"); endpoint != "" {
		sampleRatio := viper.GetFloat64("MYSTREAM_TRACES_SAMPLE_RATIO")
		if sampleRatio < 0 || sampleRatio > 1 {
			return nil, errInvalidSampleRatioValue
		}
		cfg.Traces = &otel.TracesConfig{
			Endpoint:    endpoint,
			SampleRatio: sampleRatio,
		}
	}

	return cfg, nil
}

// splitList accepts comma and/or whitespace separated values.
func splitList(s string) []string {
	values := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(values) == 0 {
		return nil
	}
	return values
}
