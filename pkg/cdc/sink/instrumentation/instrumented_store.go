// SPDX-License-Identifier: Apache-2.0

package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/otel"
)

// Store records the latency of bulk writes and the documents that failed,
// by severity.
type Store struct {
	inner   sink.Store
	meter   metric.Meter
	tracer  trace.Tracer
	metrics *metrics
}

type metrics struct {
	bulkLatency metric.Int64Histogram
	bulkDocs    metric.Int64Histogram
	docErrors   metric.Int64Counter
}

func NewStore(inner sink.Store, instrumentation *otel.Instrumentation) (sink.Store, error) {
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
			return nil, fmt.Errorf("error initialising sink store metrics: %w", err)
		}
	}
	return s, nil
}

func (s *Store) EnsureIndex(ctx context.Context) (err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "sink.EnsureIndex")
	defer otel.CloseSpan(span, err)
	return s.inner.EnsureIndex(ctx)
}

func (s *Store) SendDocuments(ctx context.Context, docs []sink.Document) (failed []sink.DocumentError, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "sink.SendDocuments", trace.WithAttributes(attribute.Int("docs", len(docs))))
	defer otel.CloseSpan(span, err)

	start := time.Now()
	failed, err = s.inner.SendDocuments(ctx, docs)

	if s.metrics.bulkLatency != nil {
		s.metrics.bulkLatency.Record(ctx, time.Since(start).Milliseconds())
	}
	if s.metrics.bulkDocs != nil {
		s.metrics.bulkDocs.Record(ctx, int64(len(docs)))
	}
	if s.metrics.docErrors != nil {
		for _, f := range failed {
			s.metrics.docErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", f.Severity.String())))
		}
	}
	return failed, err
}

func (s *Store) initMetrics() error {
	var err error
	s.metrics.bulkLatency, err = s.meter.Int64Histogram("mystream.sink.bulk.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of bulk writes to the search index"))
	if err != nil {
		return err
	}

	s.metrics.bulkDocs, err = s.meter.Int64Histogram("mystream.sink.bulk.docs",
		metric.WithUnit("documents"),
		metric.WithDescription("Documents per bulk write"))
	if err != nil {
		return err
	}

	s.metrics.docErrors, err = s.meter.Int64Counter("mystream.sink.doc.errors",
		metric.WithUnit("documents"),
		metric.WithDescription("Documents not applied by the search index, by severity"))
	return err
}
