// SPDX-License-Identifier: Apache-2.0

package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	"github.com/xataio/mystream/pkg/otel"
)

// Store records the latency of checkpoint commits and traces the calls to
// the wrapped store.
type Store struct {
	inner   checkpointer.Store
	meter   metric.Meter
	tracer  trace.Tracer
	metrics *metrics
}

type metrics struct {
	commitLatency metric.Int64Histogram
	commitErrors  metric.Int64Counter
}

func NewStore(inner checkpointer.Store, instrumentation *otel.Instrumentation) (checkpointer.Store, error) {
	if !instrumentation.IsEnabled() {
		return inner, nil
	}

	s := &Store{
		inner:   inner,
		meter:   instrumentation.Meter,
		tracer:  instrumentation.Tracer,
		metrics: &metrics{},
	}
	if s.meter != nil {
		if err := s.initMetrics(); err != nil {
			return nil, fmt.Errorf("error initialising checkpointer metrics: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, sourceID string) (pos *cdc.Position, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "checkpointer.Get", trace.WithAttributes(attribute.String("source_id", sourceID)))
	defer otel.CloseSpan(span, err)
	return s.inner.Get(ctx, sourceID)
}

func (s *Store) Commit(ctx context.Context, sourceID string, position cdc.Position) (err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "checkpointer.Commit", trace.WithAttributes(
		attribute.String("source_id", sourceID),
		attribute.String("position", position.String()),
	))
	defer otel.CloseSpan(span, err)

	start := time.Now()
	err = s.inner.Commit(ctx, sourceID, position)
	attrs := metric.WithAttributes(attribute.String("source_id", sourceID))
	if s.metrics.commitLatency != nil {
		s.metrics.commitLatency.Record(ctx, time.Since(start).Milliseconds(), attrs)
	}
	if err != nil && s.metrics.commitErrors != nil {
		s.metrics.commitErrors.Add(ctx, 1, attrs)
	}
	return err
}

func (s *Store) List(ctx context.Context) (records []checkpointer.Record, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "checkpointer.List")
	defer otel.CloseSpan(span, err)
	return s.inner.List(ctx)
}

func (s *Store) Close() error {
	return s.inner.Close()
}

func (s *Store) initMetrics() error {
	var err error
	s.metrics.commitLatency, err = s.meter.Int64Histogram("mystream.checkpoint.commit.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of durable checkpoint commits"))
	if err != nil {
		return err
	}

	s.metrics.commitErrors, err = s.meter.Int64Counter("mystream.checkpoint.commit.errors",
		metric.WithUnit("errors"),
		metric.WithDescription("Checkpoint commits that failed"))
	return err
}
