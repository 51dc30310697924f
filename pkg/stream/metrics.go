// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xataio/mystream/pkg/cdc/router"
)

// Metrics holds the per source prometheus collectors exposed by the status
// server.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	batches       *prometheus.CounterVec
	retries       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	committed     *prometheus.GaugeVec
	state         *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
}

const metricsNamespace = "mystream"

var allStates = []State{StateStarting, StateStreaming, StateRecovering, StateStopped}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events resolved by the router, by outcome",
		}, []string{"source_id", "outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_committed_total",
			Help:      "Batches applied and checkpointed",
		}, []string{"source_id"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batch_retries_total",
			Help:      "Retries of the failed subset of a batch",
		}, []string{"source_id"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to apply and checkpoint a batch",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source_id"}),
		committed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "committed_position",
			Help:      "Version of the last committed position",
		}, []string{"source_id"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "source_state",
			Help:      "1 for the current state of the source, 0 otherwise",
		}, []string{"source_id", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "source_transitions_total",
			Help:      "State transitions of the source pipelines",
		}, []string{"source_id", "to"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.batches,
		m.retries,
		m.batchDuration,
		m.committed,
		m.state,
		m.transitions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeBatch(sourceID string, stats router.BatchStats) {
	m.events.WithLabelValues(sourceID, "applied").Add(float64(stats.Applied))
	m.events.WithLabelValues(sourceID, "stale").Add(float64(stats.Stale))
	m.events.WithLabelValues(sourceID, "quarantined").Add(float64(stats.Quarantined))
	m.events.WithLabelValues(sourceID, "dropped").Add(float64(stats.Dropped))
	m.batches.WithLabelValues(sourceID).Inc()
	m.retries.WithLabelValues(sourceID).Add(float64(stats.Retries))
	m.batchDuration.WithLabelValues(sourceID).Observe(stats.Duration.Seconds())
	m.committed.WithLabelValues(sourceID).Set(float64(stats.Position.Version()))
}

func (m *Metrics) observeTransition(sourceID string, _, to State) {
	for _, s := range allStates {
		value := 0.0
		if s == to {
			value = 1
		}
		m.state.WithLabelValues(sourceID, string(s)).Set(value)
	}
	m.transitions.WithLabelValues(sourceID, string(to)).Inc()
}
