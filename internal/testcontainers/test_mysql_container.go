// SPDX-License-Identifier: Apache-2.0

package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

const (
	MySQLImage    = "mysql:8.0.36"
	MySQLUser     = "root"
	MySQLPassword = "password"
)

type MySQLAddress struct {
	Host string
	Port uint16
}

// SetupMySQLContainer starts a MySQL server with the binary log enabled in row
// format, which is the server default since 8.0.
func SetupMySQLContainer(ctx context.Context, addr *MySQLAddress, database string) (cleanup, error) {
	ctr, err := mysql.Run(ctx, MySQLImage,
		mysql.WithDatabase(database),
		mysql.WithUsername(MySQLUser),
		mysql.WithPassword(MySQLPassword),
		testcontainers.WithCmdArgs(
			"--server-id=1",
			"--log-bin=mysql-bin",
			"--binlog-format=ROW",
			"--binlog-row-image=FULL",
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mysql container: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieving host for mysql container: %w", err)
	}

	mappedPort, err := ctr.MappedPort(ctx, "3306/tcp")
	if err != nil {
		return nil, fmt.Errorf("retrieving mapped port for mysql container: %w", err)
	}

	addr.Host = host
	addr.Port = uint16(mappedPort.Int())

	return func() error {
		return ctr.Terminate(ctx)
	}, nil
}
