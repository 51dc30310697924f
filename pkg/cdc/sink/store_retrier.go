// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xataio/mystream/internal/searchstore"
	"github.com/xataio/mystream/pkg/backoff"
	loglib "github.com/xataio/mystream/pkg/log"
)

// StoreRetrier applies a retry strategy to failed store operations. Only the
// documents that failed with a retriable error are sent again.
type StoreRetrier struct {
	inner           Store
	logger          loglib.Logger
	backoffProvider backoff.Provider
}

type StoreRetryConfig struct {
	// If not provided it defaults to using exponential backoff with initial
	// interval of 500ms, max interval of 10s, and 5 max retries.
	Backoff backoff.Config
}

type StoreOption func(*StoreRetrier)

const (
	defaultStoreRetryInitialInterval = 500 * time.Millisecond
	defaultStoreRetryMaxInterval     = 10 * time.Second
	defaultStoreRetryMaxRetries      = 5
)

var errPartialDocumentSend = errors.New("failed to send some or all documents")

func NewStoreRetrier(s Store, cfg *StoreRetryConfig, opts ...StoreOption) *StoreRetrier {
	sr := &StoreRetrier{
		inner:           s,
		logger:          loglib.NewNoopLogger(),
		backoffProvider: backoff.NewProvider(cfg.backoffConfig()),
	}

	for _, opt := range opts {
		opt(sr)
	}

	return sr
}

func WithStoreLogger(logger loglib.Logger) StoreOption {
	return func(sr *StoreRetrier) {
		sr.logger = loglib.NewLogger(logger).WithFields(loglib.Fields{
			loglib.ModuleField: "sink_store_retrier",
		})
	}
}

func (s *StoreRetrier) EnsureIndex(ctx context.Context) error {
	bo := s.backoffProvider(ctx)
	return bo.RetryNotify(func() error {
		err := s.inner.EnsureIndex(ctx)
		if err != nil && !isRetriableStoreErr(err) {
			return fmt.Errorf("%w: %w", err, backoff.ErrPermanent)
		}
		return err
	}, func(err error, d time.Duration) {
		s.logger.Warn(err, "sink store retrier: ensure index failed", loglib.Fields{
			"backoff": d,
		})
	})
}

// SendDocuments will go over failed documents, identifying any with retriable
// errors and retrying them with the configured backoff policy. Stale and
// rejected documents are returned as they are.
func (s *StoreRetrier) SendDocuments(ctx context.Context, docs []Document) ([]DocumentError, error) {
	docsToSend := docs
	done := []DocumentError{}
	var pending []DocumentError
	send := func() error {
		total := len(docsToSend)
		failed, err := s.inner.SendDocuments(ctx, docsToSend)
		if err != nil {
			if !isRetriableStoreErr(err) {
				return fmt.Errorf("%w: %w", err, backoff.ErrPermanent)
			}
			return err
		}

		docsToSend = docsToSend[:0:0]
		pending = pending[:0]
		for _, f := range failed {
			if f.Severity == SeverityRetriable {
				docsToSend = append(docsToSend, f.Document)
				pending = append(pending, f)
				continue
			}
			done = append(done, f)
		}
		// nothing to retry
		if len(docsToSend) == 0 {
			return nil
		}

		s.logger.Info("sink store retrier: send documents request failed", loglib.Fields{
			"docs_sent":     total,
			"docs_failed":   len(failed),
			"docs_to_retry": len(docsToSend),
		})
		return errPartialDocumentSend
	}

	numRetries := 0
	reportErr := func(err error, d time.Duration) {
		s.logger.Warn(err, "sink store retrier: failed to send documents", loglib.Fields{
			"retries": numRetries,
			"backoff": d,
		})
		numRetries++
	}

	bo := s.backoffProvider(ctx)
	err := bo.RetryNotify(send, reportErr)
	switch {
	case err == nil:
		return done, nil
	case errors.Is(err, errPartialDocumentSend):
		// retries exhausted, hand back whatever is still failing
		return append(done, pending...), nil
	default:
		return nil, err
	}
}

func isRetriableStoreErr(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &searchstore.ErrQueryInvalid{}):
		return false
	default:
		return true
	}
}

func (c *StoreRetryConfig) backoffConfig() *backoff.Config {
	if c != nil && c.Backoff.IsSet() {
		return &c.Backoff
	}
	return &backoff.Config{
		Exponential: &backoff.ExponentialConfig{
			InitialInterval: defaultStoreRetryInitialInterval,
			MaxInterval:     defaultStoreRetryMaxInterval,
			MaxRetries:      defaultStoreRetryMaxRetries,
		},
	}
}
