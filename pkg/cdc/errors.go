// SPDX-License-Identifier: Apache-2.0

package cdc

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientConnection is returned when a source or sink connection
	// failed in a way that can be retried.
	ErrTransientConnection = errors.New("transient connection error")
	// ErrOrderingViolation is returned when an event arrives with a position
	// not greater than the last one seen for its source. The event is dropped.
	ErrOrderingViolation = errors.New("ordering violation")
	// ErrSinkRejection is returned when the sink refused to apply an event.
	ErrSinkRejection = errors.New("sink rejected event")
	// ErrCheckpointPersistence is returned when a checkpoint could not be
	// durably stored. The source must recover from its last stored position.
	ErrCheckpointPersistence = errors.New("checkpoint persistence failure")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrUnknownSource         = errors.New("unknown source")
	ErrPanic                 = errors.New("recovered from panic")
)

type OrderingViolationError struct {
	SourceID string
	Last     Position
	Got      Position
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("%s: source %s: position %s not after %s", ErrOrderingViolation, e.SourceID, e.Got, e.Last)
}

func (e *OrderingViolationError) Unwrap() error {
	return ErrOrderingViolation
}

type SinkRejectionError struct {
	Event  *Event
	Reason string
}

func (e *SinkRejectionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSinkRejection, e.Event, e.Reason)
}

func (e *SinkRejectionError) Unwrap() error {
	return ErrSinkRejection
}

// IsRetriable reports whether a failed source or pipeline operation can be
// retried. Configuration errors and ordering violations never are.
func IsRetriable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrUnknownSource),
		errors.Is(err, ErrOrderingViolation):
		return false
	default:
		return true
	}
}
