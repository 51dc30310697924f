// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrConnTimeout = errors.New("connection timeout")
	ErrNoRows      = errors.New("no rows")
)

type ErrRelationDoesNotExist struct {
	Details string
}

func (e *ErrRelationDoesNotExist) Error() string {
	return fmt.Sprintf("relation does not exist: %s", e.Details)
}

// AccessError is returned when the server rejects the credentials, the
// database or the privileges of the configured user.
type AccessError struct {
	Code    string
	Details string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("postgres access denied [%s]: %s", e.Code, e.Details)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if pgconn.Timeout(err) {
		return ErrConnTimeout
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UndefinedTable:
			return &ErrRelationDoesNotExist{Details: pgErr.Message}
		case pgerrcode.InsufficientPrivilege,
			pgerrcode.InvalidAuthorizationSpecification,
			pgerrcode.InvalidPassword,
			pgerrcode.InvalidCatalogName:
			return &AccessError{Code: pgErr.Code, Details: pgErr.Message}
		}
	}

	return err
}

// IsTransient reports whether the error comes from a dropped or refused
// connection, or a timeout.
func IsTransient(err error) bool {
	if errors.Is(err, ErrConnTimeout) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code)
}

func hasParam(rawURL, name string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		// keyword/value connection strings
		return strings.Contains(rawURL, name+"=")
	}
	return u.Query().Has(name)
}
