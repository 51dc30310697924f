// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xataio/mystream/cmd/config"
	"github.com/xataio/mystream/internal/log/zerolog"
	"github.com/xataio/mystream/pkg/stream"
)

var initFlag bool

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run streams the row changes of the configured MySQL databases into the search index",
	PreRunE: runFlagBinding,
	RunE:    withProfiling(withSignalWatcher(run)),
	Example: `
	mystream run --databases space_cloud_default,space_cloud_tenant1 --elasticsearch-url http://localhost:9200
	mystream run --config config.yaml --log-level info
	mystream run --config config.env --init`,
}

func run(ctx context.Context) error {
	logger := zerolog.NewLogger(&zerolog.Config{
		LogLevel: viper.GetString("MYSTREAM_LOG_LEVEL"),
		JSON:     viper.GetBool("MYSTREAM_LOG_JSON"),
	})
	zerolog.SetGlobalLogger(logger)

	streamConfig, err := config.ParseStreamConfig()
	if err != nil {
		return fmt.Errorf("parsing stream config: %w", err)
	}

	if initFlag {
		if err := stream.Init(ctx, zerolog.NewStdLogger(logger), streamConfig); err != nil {
			return fmt.Errorf("initialising mystream: %w", err)
		}
	}

	provider, err := newInstrumentationProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	return stream.Run(ctx, zerolog.NewStdLogger(logger), streamConfig, provider.NewInstrumentation("run"))
}

// runFlagBinding lets the flags overwrite the configuration, whether it comes
// from a yaml file, an env file or the environment.
func runFlagBinding(cmd *cobra.Command, _ []string) error {
	if flag := cmd.Flags().Lookup("databases"); flag.Changed {
		databases, err := cmd.Flags().GetStringSlice("databases")
		if err != nil {
			return fmt.Errorf("parsing databases flag: %w", err)
		}
		viper.Set("MYSTREAM_MYSQL_DATABASES", strings.Join(databases, ","))
	}

	for _, target := range []struct {
		flag   string
		engine string
		envKey string
	}{
		{flag: "elasticsearch-url", engine: "elasticsearch", envKey: "MYSTREAM_ELASTICSEARCH_URL"},
		{flag: "opensearch-url", engine: "opensearch", envKey: "MYSTREAM_OPENSEARCH_URL"},
	} {
		flag := cmd.Flags().Lookup(target.flag)
		if !flag.Changed {
			continue
		}
		viper.Set("sink.engine", target.engine)
		bindFlag(flag, "sink.url", target.envKey)
	}

	return nil
}
