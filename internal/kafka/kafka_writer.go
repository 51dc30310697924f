// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"

	loglib "github.com/xataio/mystream/pkg/log"
)

// Writer produces messages to a single topic. Messages sharing a key are
// routed to the same partition, so they are consumed in the order written.
type Writer struct {
	kafkaWriter *kafka.Writer
}

// Message is a record to be written. Headers are sent sorted by name.
type Message struct {
	Key     []byte
	Value   []byte
	Time    time.Time
	Headers map[string]string
}

type WriterConfig struct {
	Conn ConnConfig
	// WriteTimeout bounds a single produce request. Defaults to 10s.
	WriteTimeout time.Duration
}

const defaultWriteTimeout = 10 * time.Second

// NewWriter returns a writer for the configured topic, creating the topic
// first when auto create is enabled.
func NewWriter(config WriterConfig, logger loglib.Logger) (*Writer, error) {
	if len(config.Conn.Servers) == 0 {
		return nil, errNoServers
	}

	logger = loglib.NewLogger(logger)
	logger.Info("creating kafka writer", loglib.Fields{
		"kafka_servers": config.Conn.Servers,
		"kafka_topic":   config.Conn.Topic.Name,
		"tls_enabled":   config.Conn.TLS != nil && config.Conn.TLS.Enabled,
	})

	if config.Conn.Topic.AutoCreate {
		if err := createTopic(&config.Conn); err != nil {
			return nil, err
		}
	}

	transport, err := buildTransport(config.Conn.TLS)
	if err != nil {
		return nil, err
	}

	return &Writer{
		kafkaWriter: &kafka.Writer{
			Addr:         kafka.TCP(config.Conn.Servers...),
			Topic:        config.Conn.Topic.Name,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			Transport:    transport,
			WriteTimeout: config.writeTimeout(),
			Logger:       makeLogger(logger.Trace),
			ErrorLogger:  makeErrLogger(logger.Error),
		},
	}, nil
}

// WriteMessages blocks until all the messages are acknowledged by every in
// sync replica.
func (w *Writer) WriteMessages(ctx context.Context, msgs ...Message) error {
	kafkaMsgs := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		kafkaMsgs = append(kafkaMsgs, msg.toKafkaMessage())
	}
	return w.kafkaWriter.WriteMessages(ctx, kafkaMsgs...)
}

func (w *Writer) Close() error {
	return w.kafkaWriter.Close()
}

func (m Message) toKafkaMessage() kafka.Message {
	msg := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  m.Time,
	}
	for _, name := range slices.Sorted(maps.Keys(m.Headers)) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(m.Headers[name])})
	}
	return msg
}

func (c WriterConfig) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return defaultWriteTimeout
}

func createTopic(cfg *ConnConfig) error {
	return withConnection(cfg, func(conn *kafka.Conn) error {
		err := conn.CreateTopics(kafka.TopicConfig{
			Topic:             cfg.Topic.Name,
			NumPartitions:     cfg.Topic.numPartitions(),
			ReplicationFactor: cfg.Topic.replicationFactor(),
		})
		if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return fmt.Errorf("creating topic %s: %w", cfg.Topic.Name, err)
		}
		return nil
	})
}

func buildTransport(cfg *TLSConfig) (kafka.RoundTripper, error) {
	if cfg == nil || !cfg.Enabled {
		return kafka.DefaultTransport, nil
	}

	tlsConfig, err := newTLSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building TLS config: %w", err)
	}
	return &kafka.Transport{TLS: tlsConfig}, nil
}
