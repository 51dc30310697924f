// SPDX-License-Identifier: Apache-2.0

package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/elasticsearch"
)

const ElasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.9.0"

// SetupElasticsearchContainer starts a single node cluster over plain http and
// writes its address to url.
func SetupElasticsearchContainer(ctx context.Context, url *string) (cleanup, error) {
	ctr, err := elasticsearch.Run(ctx, ElasticsearchImage,
		testcontainers.WithEnv(map[string]string{
			"xpack.security.enabled": "false",
			"discovery.type":         "single-node",
			"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to start elasticsearch container: %w", err)
	}

	*url = ctr.Settings.Address

	return func() error {
		return ctr.Terminate(ctx)
	}, nil
}
