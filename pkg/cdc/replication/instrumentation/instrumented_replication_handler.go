// SPDX-License-Identifier: Apache-2.0

package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/replication"
	"github.com/xataio/mystream/pkg/otel"
)

// Handler decorates a replication handler with the replication lag gauge,
// a counter of received row changes and tracing of the connection resets.
type Handler struct {
	inner    replication.Handler
	meter    metric.Meter
	tracer   trace.Tracer
	attrs    metric.MeasurementOption
	metrics  *metrics
	lagCache *metricsCache
}

type metrics struct {
	replicationLag metric.Int64ObservableGauge
	messages       metric.Int64Counter
}

func NewHandler(inner replication.Handler, sourceID string, instrumentation *otel.Instrumentation) (replication.Handler, error) {
	if !instrumentation.IsEnabled() {
		return inner, nil
	}

	h := &Handler{
		inner:    inner,
		meter:    instrumentation.Meter,
		tracer:   instrumentation.Tracer,
		attrs:    metric.WithAttributes(attribute.String("source_id", sourceID)),
		metrics:  &metrics{},
		lagCache: newMetricsCache(inner, 0),
	}

	if h.meter != nil {
		if err := h.initMetrics(); err != nil {
			return nil, fmt.Errorf("error initialising replication handler metrics: %w", err)
		}
	}

	return h, nil
}

func (h *Handler) StartReplication(ctx context.Context, from *cdc.Position) (err error) {
	ctx, span := otel.StartSpan(ctx, h.tracer, "replication.StartReplication")
	defer otel.CloseSpan(span, err)
	return h.inner.StartReplication(ctx, from)
}

func (h *Handler) ReceiveMessage(ctx context.Context) (*replication.Message, error) {
	msg, err := h.inner.ReceiveMessage(ctx)
	if msg != nil && h.metrics.messages != nil {
		h.metrics.messages.Add(ctx, 1, h.attrs, metric.WithAttributes(attribute.String("operation", string(msg.Operation))))
	}
	return msg, err
}

func (h *Handler) ResetConnection(ctx context.Context) (err error) {
	ctx, span := otel.StartSpan(ctx, h.tracer, "replication.ResetConnection")
	defer otel.CloseSpan(span, err)
	return h.inner.ResetConnection(ctx)
}

func (h *Handler) GetReplicationLag(ctx context.Context) (int64, error) {
	return h.inner.GetReplicationLag(ctx)
}

func (h *Handler) Close() error {
	return h.inner.Close()
}

func (h *Handler) initMetrics() error {
	var err error
	h.metrics.replicationLag, err = h.meter.Int64ObservableGauge("mystream.replication.lag",
		metric.WithUnit("bytes"),
		metric.WithDescription("Binary log bytes written by the source and not yet streamed"))
	if err != nil {
		return err
	}

	h.metrics.messages, err = h.meter.Int64Counter("mystream.replication.messages",
		metric.WithUnit("messages"),
		metric.WithDescription("Row changes received from the source binary log"))
	if err != nil {
		return err
	}

	_, err = h.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		lag, err := h.lagCache.GetReplicationLag(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(h.metrics.replicationLag, lag, h.attrs)
		return nil
	}, h.metrics.replicationLag)
	if err != nil {
		return fmt.Errorf("registering replication handler metric callbacks: %w", err)
	}

	return nil
}
