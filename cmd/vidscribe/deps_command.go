package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidscribe/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools vidscribe runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reqs := deps.Requirements(cfg)
			statuses := deps.CheckBinaries(reqs)
			deps.ProbeVersions(cmd.Context(), reqs, statuses)

			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "ok"
				switch {
				case !s.Available && s.Optional:
					state = "missing (optional)"
				case !s.Available:
					state = "MISSING"
				}
				detail := s.Version
				if detail == "" {
					detail = s.Detail
				}
				rows = append(rows, []string{s.Name, s.Command, state, detail, s.Description})
			}
			cols := []column{{header: "Tool"}, {header: "Command"}, {header: "Status"}, {header: "Version"}, {header: "Used for"}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(cols, rows, ""))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
