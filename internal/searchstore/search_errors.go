// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mitchellh/mapstructure"
)

type ResponseError struct {
	Type      string      `mapstructure:"type"`
	Reason    string      `mapstructure:"reason"`
	CausedBy  *CausedBy   `mapstructure:"caused_by"`
	RootCause []RootCause `mapstructure:"root_cause"`
}

type CausedBy struct {
	Type   string `mapstructure:"type"`
	Reason string `mapstructure:"reason"`
}

type RootCause struct {
	Type   string `mapstructure:"type"`
	Reason string `mapstructure:"reason"`
}

type RetryableError struct {
	Cause error
}

func (r RetryableError) Error() string {
	return fmt.Sprintf("%v", r.Cause)
}

func (r RetryableError) Unwrap() error {
	return r.Cause
}

type ErrResourceAlreadyExists struct {
	Reason string
}

func (e ErrResourceAlreadyExists) Error() string {
	return fmt.Sprintf("resource already exists: %s", e.Reason)
}

type ErrQueryInvalid struct {
	Cause error
}

func (e ErrQueryInvalid) Error() string {
	return e.Cause.Error()
}

func (e ErrQueryInvalid) Unwrap() error {
	return e.Cause
}

const (
	VersionConflictException       = "version_conflict_engine_exception"
	MapperParsingException         = "mapper_parsing_exception"
	SnapshotInProgressException    = "snapshot_in_progress_exception"
	ResourceAlreadyExistsException = "resource_already_exists_exception"
)

var (
	ErrTooManyRequests            = errors.New("too many requests")
	ErrResourceNotFound           = errors.New("search resource not found")
	ErrUnsupportedSearchFieldType = errors.New("unsupported search field type")
)

// IsErrResponse returns the error carried by a failed response, nil
// otherwise.
func IsErrResponse(res APIResponse) error {
	if res.IsError() {
		if res.GetStatusCode() == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrResourceNotFound, ExtractResponseError(res.GetBody(), res.GetStatusCode()))
		}
		return ExtractResponseError(res.GetBody(), res.GetStatusCode())
	}

	return nil
}

// ParseItemError decodes the error of a failed bulk item. It returns nil if
// the item carries no error.
func ParseItemError(raw json.RawMessage) *ResponseError {
	if len(raw) == 0 {
		return nil
	}
	var e map[string]any
	if err := json.Unmarshal(raw, &e); err != nil {
		return &ResponseError{Reason: string(raw)}
	}
	var itemErr ResponseError
	if err := mapstructure.Decode(e, &itemErr); err != nil {
		return &ResponseError{Reason: string(raw)}
	}
	return &itemErr
}

func ExtractResponseError(body io.ReadCloser, statusCode int) error {
	var e map[string]any
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		return fmt.Errorf("decoding error response: %w", err)
	}

	var errType, errReason any
	if eErr, ok := e["error"]; ok {
		var esError ResponseError
		if err := mapstructure.Decode(eErr, &esError); err != nil {
			errType = "<unknown error type>"
			errReason = "<unknown error reason>"
		} else {
			errType = esError.Type
			errReason = esError.Reason
		}
	}

	if err, ok := getRetryableError(statusCode); ok {
		return RetryableError{Cause: err}
	}

	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: [%d]: %s: %s", ErrResourceNotFound, statusCode, errType, errReason)
	}

	if statusCode == http.StatusBadRequest {
		switch errType {
		case ResourceAlreadyExistsException:
			reason, _ := errReason.(string)
			return ErrResourceAlreadyExists{Reason: reason}
		case SnapshotInProgressException:
			return RetryableError{Cause: fmt.Errorf("[%d] %s: %s", statusCode, errType, errReason)}
		default:
			return ErrQueryInvalid{
				Cause: fmt.Errorf("%v", errReason),
			}
		}
	}

	return fmt.Errorf("[%d] %s: %s", statusCode, errType, errReason)
}

// IsRetryableStatus reports whether a request that failed with the status
// code on input may succeed if sent again.
func IsRetryableStatus(statusCode int) bool {
	_, ok := getRetryableError(statusCode)
	return ok || statusCode >= http.StatusInternalServerError
}

func getRetryableError(statusCode int) (error, bool) {
	switch statusCode {
	case http.StatusRequestTimeout:
		return errors.New("request timeout"), true
	case http.StatusLocked:
		return errors.New("resource locked"), true
	case http.StatusTooEarly:
		return errors.New("too early"), true
	case http.StatusTooManyRequests:
		return ErrTooManyRequests, true
	case http.StatusBadGateway:
		return errors.New("bad gateway"), true
	case http.StatusServiceUnavailable:
		return errors.New("service unavailable"), true
	case http.StatusGatewayTimeout:
		return errors.New("gateway timeout"), true
	}

	return nil, false
}
