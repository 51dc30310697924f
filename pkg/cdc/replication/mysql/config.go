// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"fmt"
	"time"

	mysqllib "github.com/xataio/mystream/internal/mysql"
	"github.com/xataio/mystream/pkg/cdc"
)

type Config struct {
	Conn mysqllib.ConnConfig
	// Schema is the database whose row changes are streamed. Changes to
	// other databases of the server are skipped.
	Schema string
	// ServerID identifies the replication client, it must be unique among
	// the replicas of the server.
	ServerID uint32
	// Flavor is either mysql or mariadb.
	Flavor            string
	StartPosition     StartPosition
	HeartbeatPeriod   time.Duration
	ReadTimeout       time.Duration
	MetadataCacheSize int
}

// StartPosition defines where streaming starts when there's no checkpoint.
type StartPosition string

const (
	StartPositionEarliest StartPosition = "earliest"
	StartPositionLatest   StartPosition = "latest"
)

const (
	defaultFlavor            = "mysql"
	defaultHeartbeatPeriod   = 30 * time.Second
	defaultReadTimeout       = 90 * time.Second
	defaultMetadataCacheSize = 128
)

func (c *Config) flavor() string {
	if c.Flavor != "" {
		return c.Flavor
	}
	return defaultFlavor
}

func (c *Config) startPosition() StartPosition {
	if c.StartPosition != "" {
		return c.StartPosition
	}
	return StartPositionEarliest
}

func (c *Config) heartbeatPeriod() time.Duration {
	if c.HeartbeatPeriod > 0 {
		return c.HeartbeatPeriod
	}
	return defaultHeartbeatPeriod
}

func (c *Config) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return defaultReadTimeout
}

func (c *Config) metadataCacheSize() int {
	if c.MetadataCacheSize > 0 {
		return c.MetadataCacheSize
	}
	return defaultMetadataCacheSize
}

func (c *Config) Validate() error {
	switch {
	case c.Conn.Host == "":
		return fmt.Errorf("%w: missing mysql host", cdc.ErrInvalidConfig)
	case c.Conn.Port == 0:
		return fmt.Errorf("%w: missing mysql port", cdc.ErrInvalidConfig)
	case c.Schema == "":
		return fmt.Errorf("%w: missing mysql database", cdc.ErrInvalidConfig)
	case c.ServerID == 0:
		return fmt.Errorf("%w: replication server id must be positive", cdc.ErrInvalidConfig)
	}

	switch c.flavor() {
	case "mysql", "mariadb":
	default:
		return fmt.Errorf("%w: unsupported flavor %q", cdc.ErrInvalidConfig, c.Flavor)
	}

	switch c.startPosition() {
	case StartPositionEarliest, StartPositionLatest:
	default:
		return fmt.Errorf("%w: unsupported start position %q", cdc.ErrInvalidConfig, c.StartPosition)
	}
	return nil
}
