// SPDX-License-Identifier: Apache-2.0

package router

import (
	"time"

	"github.com/xataio/mystream/pkg/backoff"
)

type Config struct {
	// BatchSize is the max number of events applied per batch. Defaults to
	// 500.
	BatchSize int
	// BatchWindow is the max time an event waits in a partial batch before it
	// is applied. Defaults to 1s.
	BatchWindow time.Duration
	// MaxBatchRetries bounds how many times the failed subset of a batch is
	// applied again before it is quarantined. Defaults to 3.
	MaxBatchRetries uint
	// MaxEventRetries bounds how many times an event rejected by the sink is
	// sent again before it is quarantined. Retries of rejected events share
	// the batch retry budget. Defaults to 3.
	MaxEventRetries uint
	// RetryInterval is the initial wait between batch retries. It grows
	// exponentially up to 10s. Defaults to 200ms.
	RetryInterval time.Duration
}

const (
	defaultBatchSize        = 500
	defaultBatchWindow      = time.Second
	defaultMaxBatchRetries  = 3
	defaultMaxEventRetries  = 3
	defaultRetryInterval    = 200 * time.Millisecond
	defaultMaxRetryInterval = 10 * time.Second
)

func (c *Config) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return defaultBatchSize
}

func (c *Config) batchWindow() time.Duration {
	if c.BatchWindow > 0 {
		return c.BatchWindow
	}
	return defaultBatchWindow
}

func (c *Config) maxEventRetries() uint {
	if c.MaxEventRetries > 0 {
		return c.MaxEventRetries
	}
	return defaultMaxEventRetries
}

func (c *Config) backoffConfig() *backoff.Config {
	maxRetries := c.MaxBatchRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxBatchRetries
	}
	interval := c.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	return &backoff.Config{
		Exponential: &backoff.ExponentialConfig{
			InitialInterval: interval,
			MaxInterval:     defaultMaxRetryInterval,
			MaxRetries:      maxRetries,
		},
	}
}
