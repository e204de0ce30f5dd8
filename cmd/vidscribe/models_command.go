package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidscribe/internal/asr"
	"vidscribe/internal/logging"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List speech recognition models and whether they are downloaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			engine := newEngine(cfg, logging.NewNop())
			configured, _ := asr.ParseSize(cfg.Transcription.ModelSize)

			rows := make([][]string, 0, 5)
			for _, info := range asr.Models() {
				name := string(info.Size)
				if info.Size == configured {
					name += " *"
				}
				rows = append(rows, []string{
					name,
					info.Name,
					strconv.Itoa(info.ApproxMB),
					info.Description,
					yesNo(engine.Cached(info.Size)),
				})
			}
			cols := []column{{header: "Size"}, {header: "Model"}, {header: "Approx MB", right: true}, {header: "Notes"}, {header: "Downloaded"}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(cols, rows, "* configured default; weights in "+cfg.Paths.ModelDir))
			return nil
		},
	}
}
