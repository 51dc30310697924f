// SPDX-License-Identifier: Apache-2.0

package instrumentation

import (
	"context"
	"sync"
	"time"
)

type lagRetriever interface {
	GetReplicationLag(ctx context.Context) (int64, error)
}

// metricsCache limits how often the replication lag is queried from the
// source. Computing it lists the server binary logs.
type metricsCache struct {
	inner lagRetriever
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	updatedAt time.Time
	lag       int64
}

const defaultCacheTTL = 30 * time.Second

func newMetricsCache(inner lagRetriever, ttl time.Duration) *metricsCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &metricsCache{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *metricsCache) GetReplicationLag(ctx context.Context) (int64, error) {
	c.mu.RLock()
	lag, valid := c.lag, !c.updatedAt.IsZero() && c.now().Sub(c.updatedAt) < c.ttl
	c.mu.RUnlock()
	if valid {
		return lag, nil
	}

	lag, err := c.inner.GetReplicationLag(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lag = lag
	c.updatedAt = c.now()
	return lag, nil
}
