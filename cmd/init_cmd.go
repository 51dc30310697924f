// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xataio/mystream/cmd/config"
	"github.com/xataio/mystream/internal/log/zerolog"
	"github.com/xataio/mystream/pkg/stream"
)

var initCmd = &cobra.Command{
	Use:    "init",
	Short:  "Initialises mystream, checking the sources binlog format and creating the checkpoint schema and the search index",
	PreRun: initFlagBinding,
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, _ := pterm.DefaultSpinner.WithText("initialising mystream...").Start()

		streamConfig, err := config.ParseStreamConfig()
		if err != nil {
			sp.Fail(err.Error())
			return fmt.Errorf("parsing stream config: %w", err)
		}

		logger := zerolog.NewLogger(&zerolog.Config{
			LogLevel: viper.GetString("MYSTREAM_LOG_LEVEL"),
			JSON:     viper.GetBool("MYSTREAM_LOG_JSON"),
		})

		if err := stream.Init(context.Background(), zerolog.NewStdLogger(logger), streamConfig); err != nil {
			sp.Fail(err.Error())
			return err
		}

		sp.Success("mystream initialisation complete")
		return nil
	},
	Example: `
	mystream init --checkpoint-postgres-url <postgres-url>
	mystream init -c config.yaml
	mystream init -c config.env`,
}

func initFlagBinding(cmd *cobra.Command, _ []string) {
	bindFlag(cmd.Flags().Lookup("checkpoint-postgres-url"), "checkpoint.postgres.url", "MYSTREAM_CHECKPOINT_POSTGRES_URL")
}
