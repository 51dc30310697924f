// SPDX-License-Identifier: Apache-2.0

package mocks

import "github.com/xataio/mystream/pkg/backoff"

// Backoff records the operations it is asked to run. A nil RetryNotifyFn runs
// the operation once.
type Backoff struct {
	RetryNotifyFn func(backoff.Operation, backoff.Notify) error
	RetryFn       func(backoff.Operation) error
	Calls         int
}

func (m *Backoff) RetryNotify(op backoff.Operation, notify backoff.Notify) error {
	m.Calls++
	if m.RetryNotifyFn == nil {
		return op()
	}
	return m.RetryNotifyFn(op, notify)
}

func (m *Backoff) Retry(op backoff.Operation) error {
	m.Calls++
	if m.RetryFn == nil {
		return op()
	}
	return m.RetryFn(op)
}
