// SPDX-License-Identifier: Apache-2.0

package retrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xataio/mystream/pkg/backoff"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/replication"
	loglib "github.com/xataio/mystream/pkg/log"
)

// HandlerRetrier reconnects the wrapped handler when receiving a message
// fails, up to the configured number of retries. Once the retries are
// exhausted the error is returned wrapped as a transient connection error.
type HandlerRetrier struct {
	inner           replication.Handler
	backoffProvider backoff.Provider
	logger          loglib.Logger
}

type Option func(*HandlerRetrier)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
	defaultMaxRetries      = 10
)

func NewHandler(h replication.Handler, backoffConfig backoff.Config, opts ...Option) *HandlerRetrier {
	if !backoffConfig.IsSet() {
		backoffConfig = defaultBackoffConfig()
	}

	hr := &HandlerRetrier{
		inner:           h,
		backoffProvider: backoff.NewProvider(&backoffConfig),
		logger:          loglib.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(hr)
	}

	return hr
}

func WithLogger(logger loglib.Logger) Option {
	return func(hr *HandlerRetrier) {
		hr.logger = loglib.NewLogger(logger).WithFields(loglib.Fields{
			loglib.ModuleField: "replication_retrier",
		})
	}
}

func (h *HandlerRetrier) StartReplication(ctx context.Context, from *cdc.Position) error {
	return h.withRetry(ctx, func() error {
		return h.inner.StartReplication(ctx, from)
	}, false)
}

func (h *HandlerRetrier) ReceiveMessage(ctx context.Context) (*replication.Message, error) {
	var msg *replication.Message
	op := func() error {
		var err error
		msg, err = h.inner.ReceiveMessage(ctx)
		return err
	}

	if err := h.withRetry(ctx, op, true); err != nil {
		return nil, err
	}
	return msg, nil
}

func (h *HandlerRetrier) ResetConnection(ctx context.Context) error {
	return h.inner.ResetConnection(ctx)
}

func (h *HandlerRetrier) GetReplicationLag(ctx context.Context) (int64, error) {
	return h.inner.GetReplicationLag(ctx)
}

func (h *HandlerRetrier) Close() error {
	return h.inner.Close()
}

func (h *HandlerRetrier) withRetry(ctx context.Context, operation func() error, reset bool) error {
	err := operation()
	if err == nil || !isRetriableError(err) {
		return err
	}

	bo := h.backoffProvider(ctx)
	err = bo.RetryNotify(func() error {
		if reset {
			if connErr := h.inner.ResetConnection(ctx); connErr != nil {
				if !isRetriableError(connErr) {
					return fmt.Errorf("resetting connection: %w: %w", connErr, backoff.ErrPermanent)
				}
				return fmt.Errorf("resetting connection: %w", connErr)
			}
		}

		err := operation()
		if err != nil && !isRetriableError(err) {
			return fmt.Errorf("%w: %w", err, backoff.ErrPermanent)
		}
		return err
	}, func(err error, d time.Duration) {
		h.logger.Warn(err, "retrying replication handler operation after error", loglib.Fields{
			"retry_delay": d.String(),
		})
	})
	switch {
	case err == nil:
		h.logger.Info("retried replication handler operation succeeded")
		return nil
	case errors.Is(err, backoff.ErrPermanent), !isRetriableError(err):
		return err
	default:
		return fmt.Errorf("%w: retries exhausted: %w", cdc.ErrTransientConnection, err)
	}
}

func isRetriableError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, replication.ErrStreamClosed),
		errors.Is(err, backoff.ErrPermanent):
		return false
	default:
		return cdc.IsRetriable(err)
	}
}

func defaultBackoffConfig() backoff.Config {
	return backoff.Config{
		Exponential: &backoff.ExponentialConfig{
			InitialInterval: defaultInitialInterval,
			MaxInterval:     defaultMaxInterval,
			MaxRetries:      defaultMaxRetries,
		},
	}
}
