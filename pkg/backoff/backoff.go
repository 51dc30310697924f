// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Backoff interface {
	RetryNotify(Operation, Notify) error
	Retry(Operation) error
}

type (
	Operation func() error
	Notify    func(error, time.Duration)
)

type Config struct {
	Exponential *ExponentialConfig
	Constant    *ConstantConfig
}

type ExponentialConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime bounds the total retry duration. Zero means no bound
	// other than MaxRetries.
	MaxElapsedTime time.Duration
	MaxRetries     uint
}

type ConstantConfig struct {
	Interval   time.Duration
	MaxRetries uint
}

// Provider returns a fresh backoff policy bound to the context on input. Each
// retry loop must get its own instance, policies keep state.
type Provider func(ctx context.Context) Backoff

var ErrPermanent = errors.New("permanent error, do not retry")

func (c *Config) IsSet() bool {
	return c != nil && (c.Exponential != nil || c.Constant != nil)
}

// NewProvider returns a backoff provider based on the config on input.
// Without a config the operations run once.
func NewProvider(cfg *Config) Provider {
	switch {
	case cfg != nil && cfg.Constant != nil:
		return func(ctx context.Context) Backoff {
			return NewConstantBackoff(ctx, cfg.Constant)
		}
	case cfg != nil && cfg.Exponential != nil:
		return func(ctx context.Context) Backoff {
			return NewExponentialBackoff(ctx, cfg.Exponential)
		}
	default:
		return func(context.Context) Backoff { return NewStopBackoff() }
	}
}

// policy adapts a cenkalti backoff to the Backoff interface. Operations
// returning an error wrapping ErrPermanent are not retried.
type policy struct {
	bo backoff.BackOff
}

func NewExponentialBackoff(ctx context.Context, cfg *ExponentialConfig) Backoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialInterval
	if cfg.MaxInterval > 0 {
		exp.MaxInterval = cfg.MaxInterval
	}
	exp.MaxElapsedTime = cfg.MaxElapsedTime
	return newPolicy(ctx, exp, cfg.MaxRetries)
}

func NewConstantBackoff(ctx context.Context, cfg *ConstantConfig) Backoff {
	return newPolicy(ctx, backoff.NewConstantBackOff(cfg.Interval), cfg.MaxRetries)
}

// NewStopBackoff runs the operation once.
func NewStopBackoff() Backoff {
	return &policy{bo: &backoff.StopBackOff{}}
}

func newPolicy(ctx context.Context, bo backoff.BackOff, maxRetries uint) *policy {
	if maxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(maxRetries))
	}
	return &policy{bo: backoff.WithContext(bo, ctx)}
}

func (p *policy) Retry(op Operation) error {
	return p.RetryNotify(op, nil)
}

func (p *policy) RetryNotify(op Operation, notify Notify) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		return err
	}, p.bo, backoff.Notify(notify))
}
