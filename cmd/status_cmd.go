// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/xataio/mystream/cmd/config"
	"github.com/xataio/mystream/pkg/stream"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Checks the provided configuration, the reachability of the sources and the committed checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, _ := pterm.DefaultSpinner.WithText("checking mystream status...").Start()

		streamConfig, err := config.ParseStreamConfig()
		if err != nil {
			sp.Fail(err.Error())
			return fmt.Errorf("parsing stream config: %w", err)
		}

		statusChecker := stream.NewStatusChecker()
		status, err := statusChecker.Status(context.Background(), streamConfig)
		if err != nil {
			sp.Fail(err.Error())
			return err
		}

		statusErrs := status.GetErrors()
		if len(statusErrs) == 0 {
			sp.Success("mystream status check encountered no issues")
		} else {
			sp.Warning("mystream status check identified issues with ", strings.Join(statusErrs.Keys(), ", "))
		}

		if err := print(cmd, status); err != nil {
			sp.Fail("failed to format mystream status")
			return err
		}

		if !isJSONOutput(cmd) {
			return printCheckpointsTable(status.Checkpoints)
		}
		return nil
	},
	Example: `
	mystream status -c config.env
	mystream status -c config.yaml --json
	`,
}

type printer interface {
	PrettyPrint() string
}

func print(cmd *cobra.Command, p printer) error {
	str := p.PrettyPrint()
	if isJSONOutput(cmd) {
		var prettyJSON bytes.Buffer
		jsonData, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := json.Indent(&prettyJSON, jsonData, "", "\t"); err != nil {
			return err
		}
		str = prettyJSON.String()
	}

	fmt.Println(str) //nolint:forbidigo
	return nil
}

func printCheckpointsTable(cs *stream.CheckpointsStatus) error {
	if cs == nil || len(cs.Records) == 0 {
		return nil
	}

	data := pterm.TableData{{"Source", "Binlog position", "Updated at"}}
	for _, r := range cs.Records {
		data = append(data, []string{r.SourceID, r.Position.String(), r.UpdatedAt.Format(time.RFC3339)})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("rendering checkpoints table: %w", err)
	}
	fmt.Println(table) //nolint:forbidigo
	return nil
}

func isJSONOutput(cmd *cobra.Command) bool {
	return cmd.Flags().Lookup("json").Value.String() == trueStr
}
