// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"strings"

	"github.com/xataio/mystream/pkg/cdc/checkpointer"
)

// Status is the result of the offline checks of a pipeline configuration.
type Status struct {
	Config      *ConfigStatus
	Sources     []*SourceCheck
	Checkpoints *CheckpointsStatus
}

type ConfigStatus struct {
	Valid  bool
	Errors []string
}

type SourceCheck struct {
	SourceID     string
	Reachable    bool
	BinlogFormat string
	Errors       []string
}

type CheckpointsStatus struct {
	Backend string
	Records []checkpointer.Record
	Errors  []string
}

type StatusErrors map[string][]string

func (se StatusErrors) Keys() []string {
	keys := make([]string, 0, len(se))
	for k := range se {
		keys = append(keys, k)
	}
	return keys
}

func (s *Status) GetErrors() StatusErrors {
	if s == nil {
		return nil
	}

	errors := map[string][]string{}
	if s.Config != nil && len(s.Config.Errors) > 0 {
		errors["config"] = s.Config.Errors
	}

	for _, src := range s.Sources {
		if len(src.Errors) > 0 {
			errors["source "+src.SourceID] = src.Errors
		}
	}

	if s.Checkpoints != nil && len(s.Checkpoints.Errors) > 0 {
		errors["checkpoints"] = s.Checkpoints.Errors
	}

	return errors
}

func (s *Status) PrettyPrint() string {
	if s == nil {
		return ""
	}

	var prettyPrint strings.Builder
	prettyPrint.WriteString(s.Config.PrettyPrint())
	for _, src := range s.Sources {
		prettyPrint.WriteByte('\n')
		prettyPrint.WriteString(src.PrettyPrint())
	}
	prettyPrint.WriteByte('\n')
	prettyPrint.WriteString(s.Checkpoints.PrettyPrint())

	return prettyPrint.String()
}

func (cs *ConfigStatus) PrettyPrint() string {
	if cs == nil {
		return ""
	}

	var prettyPrint strings.Builder
	prettyPrint.WriteString("Config status:\n")
	prettyPrint.WriteString(fmt.Sprintf(" - Valid: %t\n", cs.Valid))
	if len(cs.Errors) > 0 {
		prettyPrint.WriteString(fmt.Sprintf(" - Errors: %s\n", cs.Errors))
	}

	return strings.TrimSuffix(prettyPrint.String(), "\n")
}

func (sc *SourceCheck) PrettyPrint() string {
	if sc == nil {
		return ""
	}

	var prettyPrint strings.Builder
	prettyPrint.WriteString(fmt.Sprintf("Source %s status:\n", sc.SourceID))
	prettyPrint.WriteString(fmt.Sprintf(" - Reachable: %t\n", sc.Reachable))
	if sc.BinlogFormat != "" {
		prettyPrint.WriteString(fmt.Sprintf(" - Binlog format: %s\n", sc.BinlogFormat))
	}
	if len(sc.Errors) > 0 {
		prettyPrint.WriteString(fmt.Sprintf(" - Errors: %s\n", sc.Errors))
	}

	return strings.TrimSuffix(prettyPrint.String(), "\n")
}

func (cs *CheckpointsStatus) PrettyPrint() string {
	if cs == nil {
		return ""
	}

	var prettyPrint strings.Builder
	prettyPrint.WriteString(fmt.Sprintf("Checkpoints status (%s):\n", cs.Backend))
	for _, r := range cs.Records {
		prettyPrint.WriteString(fmt.Sprintf(" - %s: %s (updated %s)\n", r.SourceID, r.Position, r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")))
	}
	if len(cs.Errors) > 0 {
		prettyPrint.WriteString(fmt.Sprintf(" - Errors: %s\n", cs.Errors))
	}

	return strings.TrimSuffix(prettyPrint.String(), "\n")
}
