// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// BinaryLog is an entry of SHOW BINARY LOGS.
type BinaryLog struct {
	Name string
	Size uint64
}

// BinlogStatus is the current write position of the server binary log.
type BinlogStatus struct {
	File     string
	Position uint64
}

// TableMetadata describes the columns of a table in ordinal order.
type TableMetadata struct {
	Schema     string
	Table      string
	Columns    []string
	PrimaryKey []string
}

func (t *TableMetadata) HasPrimaryKey() bool {
	return len(t.PrimaryKey) > 0
}

var ErrNoBinaryLogs = errors.New("binary logging is not enabled")

const (
	binlogStatusQuery       = "SHOW BINARY LOG STATUS"
	legacyMasterStatusQuery = "SHOW MASTER STATUS"
	binaryLogsQuery         = "SHOW BINARY LOGS"
	binlogFormatQuery       = "SELECT @@GLOBAL.binlog_format"
	tableColumnsQuery       = `SELECT COLUMN_NAME, COLUMN_KEY FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
)

// BinaryLogs lists the binary log files available on the server, oldest
// first.
func (c *Conn) BinaryLogs(ctx context.Context) ([]BinaryLog, error) {
	rows, err := c.db.QueryContext(ctx, binaryLogsQuery)
	if err != nil {
		if isErrorNumber(err, errNoBinaryLogging) {
			return nil, ErrNoBinaryLogs
		}
		return nil, fmt.Errorf("listing binary logs: %w", mapError(err))
	}
	defer rows.Close()

	logs := []BinaryLog{}
	err = scanRows(rows, func(values map[string]sql.RawBytes) error {
		log := BinaryLog{Name: string(values["log_name"])}
		if _, err := fmt.Sscan(string(values["file_size"]), &log.Size); err != nil {
			return fmt.Errorf("parsing size of binary log %s: %w", log.Name, err)
		}
		logs = append(logs, log)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ErrNoBinaryLogs
	}
	return logs, nil
}

// BinlogStatus returns the position the server is currently writing to.
// Servers before 8.2 only understand the legacy statement.
func (c *Conn) BinlogStatus(ctx context.Context) (*BinlogStatus, error) {
	status, err := c.binlogStatus(ctx, binlogStatusQuery)
	if err != nil && isErrorNumber(err, errParse) {
		status, err = c.binlogStatus(ctx, legacyMasterStatusQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("reading binary log status: %w", mapError(err))
	}
	return status, nil
}

func (c *Conn) binlogStatus(ctx context.Context, query string) (*BinlogStatus, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var status *BinlogStatus
	err = scanRows(rows, func(values map[string]sql.RawBytes) error {
		status = &BinlogStatus{File: string(values["file"])}
		if _, err := fmt.Sscan(string(values["position"]), &status.Position); err != nil {
			return fmt.Errorf("parsing binary log position: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if status == nil || status.File == "" {
		return nil, ErrNoBinaryLogs
	}
	return status, nil
}

// BinlogFormat returns the global binlog_format. Row events are only
// available with the ROW format.
func (c *Conn) BinlogFormat(ctx context.Context) (string, error) {
	var format string
	if err := c.db.QueryRowContext(ctx, binlogFormatQuery).Scan(&format); err != nil {
		return "", fmt.Errorf("reading binlog format: %w", mapError(err))
	}
	return strings.ToUpper(format), nil
}

// TableMetadata returns the column names and primary key of the table.
func (c *Conn) TableMetadata(ctx context.Context, schema, table string) (*TableMetadata, error) {
	rows, err := c.db.QueryContext(ctx, tableColumnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s.%s: %w", schema, table, mapError(err))
	}
	defer rows.Close()

	md := &TableMetadata{Schema: schema, Table: table}
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, fmt.Errorf("scanning column of %s.%s: %w", schema, table, mapError(err))
		}
		md.Columns = append(md.Columns, name)
		if key == "PRI" {
			md.PrimaryKey = append(md.PrimaryKey, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns of %s.%s: %w", schema, table, mapError(err))
	}
	if len(md.Columns) == 0 {
		return nil, &UnknownObjectError{Details: fmt.Sprintf("table %s.%s", schema, table)}
	}
	return md, nil
}

// scanRows calls fn for every row with the values keyed by lower case column
// name. SHOW statements return a different set of columns depending on the
// server version, so they can't be scanned positionally.
func scanRows(rows *sql.Rows, fn func(map[string]sql.RawBytes) error) error {
	columns, err := rows.Columns()
	if err != nil {
		return mapError(err)
	}

	for rows.Next() {
		raw := make([]sql.RawBytes, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return mapError(err)
		}
		values := make(map[string]sql.RawBytes, len(columns))
		for i, col := range columns {
			values[strings.ToLower(col)] = raw[i]
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return mapError(rows.Err())
}
