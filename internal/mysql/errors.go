// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	mysqldriver "github.com/go-sql-driver/mysql"
)

var (
	ErrConnTimeout = errors.New("connection timeout")
	ErrNoRows      = errors.New("no rows")
	ErrConnection  = errors.New("connection error")
)

// server error numbers, see
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied      = 1045
	errBadDB             = 1049
	errNoSuchTable       = 1146
	errSpecificAccess    = 1227
	errParse             = 1064
	errNoBinaryLogging   = 1381
	errServerShutdown    = 1053
	errTooManyConnection = 1040
)

// AccessError is returned when the configured credentials are rejected, or
// miss the privileges required to read the binary log.
type AccessError struct {
	Details string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Details)
}

type UnknownObjectError struct {
	Details string
}

func (e *UnknownObjectError) Error() string {
	return fmt.Sprintf("unknown object: %s", e.Details)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrConnTimeout
		}
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errAccessDenied, errSpecificAccess:
			return &AccessError{Details: myErr.Message}
		case errBadDB, errNoSuchTable:
			return &UnknownObjectError{Details: myErr.Message}
		case errServerShutdown, errTooManyConnection:
			return fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}

	return err
}

// IsTransient reports whether the error is a connectivity failure that can
// be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnTimeout) || errors.Is(err, ErrConnection)
}

func isErrorNumber(err error, number uint16) bool {
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == number
}
