// SPDX-License-Identifier: Apache-2.0

package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/xataio/mystream/internal/json"
	"github.com/xataio/mystream/internal/kafka"
	"github.com/xataio/mystream/pkg/cdc/sink"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Kafka publishes quarantined events to a dead letter topic, keyed by source
// and row key so the records of a row stay in order.
type Kafka struct {
	writer    messageWriter
	logger    loglib.Logger
	marshaler func(any) ([]byte, error)
	now       func() time.Time
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Kafka kafka.ConnConfig
}

func NewKafka(cfg KafkaConfig, logger loglib.Logger) (*Kafka, error) {
	logger = loglib.NewLogger(logger).WithFields(loglib.Fields{
		loglib.ModuleField: "kafka_quarantine",
	})
	writer, err := kafka.NewWriter(kafka.WriterConfig{
		Conn: cfg.Kafka,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating quarantine kafka writer: %w", err)
	}

	return &Kafka{
		writer:    writer,
		logger:    logger,
		marshaler: json.Marshal,
		now:       time.Now,
	}, nil
}

func (q *Kafka) Quarantine(ctx context.Context, failures []sink.EventFailure) error {
	if len(failures) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(failures))
	for _, f := range failures {
		record := newRecord(f, q.now())
		value, err := q.marshaler(record)
		if err != nil {
			return fmt.Errorf("marshaling quarantine record: %w", err)
		}
		logRecord(q.logger, record, f.Err)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(record.SourceID + "/" + record.Key),
			Value: value,
			Time:  record.QuarantinedAt,
			Headers: map[string]string{
				sink.SourceDBField: record.SourceID,
				"severity":         record.Severity,
			},
		})
	}

	if err := q.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing quarantine records: %w", err)
	}
	return nil
}

func (q *Kafka) Close() error {
	return q.writer.Close()
}
