// SPDX-License-Identifier: Apache-2.0

package retrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/checkpointer"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Store retries the checkpoint reads and commits of the wrapped store. A
// commit that still fails once the retries are exhausted is returned as a
// checkpoint persistence failure.
type Store struct {
	inner           checkpointer.Store
	backoffProvider backoff.Provider
	logger          loglib.Logger
}

type Option func(*Store)

const (
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMaxRetries      = 5
)

func New(inner checkpointer.Store, backoffConfig backoff.Config, opts ...Option) *Store {
	if !backoffConfig.IsSet() {
		backoffConfig = backoff.Config{
			Exponential: &backoff.ExponentialConfig{
				InitialInterval: defaultInitialInterval,
				MaxInterval:     defaultMaxInterval,
				MaxRetries:      defaultMaxRetries,
			},
		}
	}

	s := &Store{
		inner:           inner,
		backoffProvider: backoff.NewProvider(&backoffConfig),
		logger:          loglib.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithLogger(l loglib.Logger) Option {
	return func(s *Store) {
		s.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "checkpointer_retrier",
		})
	}
}

func (s *Store) Get(ctx context.Context, sourceID string) (*cdc.Position, error) {
	var pos *cdc.Position
	err := s.withRetry(ctx, sourceID, func() error {
		var err error
		pos, err = s.inner.Get(ctx, sourceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *Store) Commit(ctx context.Context, sourceID string, position cdc.Position) error {
	err := s.withRetry(ctx, sourceID, func() error {
		return s.inner.Commit(ctx, sourceID, position)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", cdc.ErrCheckpointPersistence, err)
	}
	return err
}

func (s *Store) List(ctx context.Context) ([]checkpointer.Record, error) {
	return s.inner.List(ctx)
}

func (s *Store) Close() error {
	return s.inner.Close()
}

func (s *Store) withRetry(ctx context.Context, sourceID string, op func() error) error {
	bo := s.backoffProvider(ctx)
	return bo.RetryNotify(func() error {
		err := op()
		if err != nil && !isRetriable(err) {
			return fmt.Errorf("%w: %w", err, backoff.ErrPermanent)
		}
		return err
	}, func(err error, d time.Duration) {
		s.logger.Warn(err, "retrying checkpoint store operation", loglib.Fields{
			loglib.SourceIDField: sourceID,
			"retry_delay":        d.String(),
		})
	})
}

func isRetriable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, checkpointer.ErrInvalidSourceID),
		errors.Is(err, cdc.ErrInvalidConfig),
		errors.Is(err, cdc.ErrInvalidPosition):
		return false
	default:
		return true
	}
}
