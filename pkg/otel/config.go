// SPDX-License-Identifier: Apache-2.0

package otel

import "time"

// Config enables the OTLP exporters. A nil section leaves the matching signal
// disabled.
type Config struct {
	Metrics *MetricsConfig
	Traces  *TracesConfig
}

type MetricsConfig struct {
	// Endpoint is the host:port of the OTLP gRPC collector.
	Endpoint string
	// CollectionInterval defaults to 60s.
	CollectionInterval time.Duration
}

type TracesConfig struct {
	Endpoint string
	// SampleRatio is the share of root spans kept, between 0 and 1.
	SampleRatio float64
}

const defaultCollectionInterval = time.Minute

func (c *Config) enabled() bool {
	return c != nil && (c.Metrics != nil || c.Traces != nil)
}

func (c *MetricsConfig) collectionInterval() time.Duration {
	if c.CollectionInterval > 0 {
		return c.CollectionInterval
	}
	return defaultCollectionInterval
}

func (c *TracesConfig) sampleRatio() float64 {
	return min(max(c.SampleRatio, 0), 1)
}
