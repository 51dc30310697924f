// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// ConnConfig holds the connection details of a MySQL server.
type ConnConfig struct {
	Host     string
	Port     uint16
	User     string
	Password string
	// Database is optional, the metadata queries are fully qualified.
	Database    string
	DialTimeout time.Duration
}

const defaultDialTimeout = 10 * time.Second

func (c *ConnConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// DSN returns the go-sql-driver data source name for the config.
func (c *ConnConfig) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Addr()
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Timeout = c.DialTimeout
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDialTimeout
	}
	return cfg.FormatDSN()
}

// Conn is a small pool of connections used for metadata queries. It is not
// used to read row changes, those come from the binary log stream.
type Conn struct {
	db *sql.DB
}

func NewConn(ctx context.Context, cfg *ConnConfig) (*Conn, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection to %s: %w", cfg.Addr(), mapError(err))
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql %s: %w", cfg.Addr(), mapError(err))
	}

	return &Conn{db: db}, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	return mapError(c.db.PingContext(ctx))
}

func (c *Conn) Close() error {
	return c.db.Close()
}
