// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/xataio/mystream/internal/testcontainers"
)

const integrationTestsEnv = "MYSTREAM_INTEGRATION_TESTS"

func TestMain(m *testing.M) {
	// if integration tests are not enabled, nothing to setup
	if os.Getenv(integrationTestsEnv) != "" {
		ctx := context.Background()
		mysqlcleanup, err := testcontainers.SetupMySQLContainer(ctx, &mysqlAddr, "space_cloud_default")
		if err != nil {
			log.Fatal(err)
		}
		defer mysqlcleanup()

		pgcleanup, err := testcontainers.SetupPostgresContainer(ctx, &pgurl)
		if err != nil {
			log.Fatal(err)
		}
		defer pgcleanup()

		escleanup, err := testcontainers.SetupElasticsearchContainer(ctx, &elasticsearchURL)
		if err != nil {
			log.Fatal(err)
		}
		defer escleanup()
	}

	os.Exit(m.Run())
}
