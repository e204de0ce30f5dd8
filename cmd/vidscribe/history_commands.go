package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/queue"
)

const historyTimeLayout = "2006-01-02 15:04"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List finished tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *queue.Store) error {
				records, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No tasks recorded yet")
					return nil
				}
				summary, err := store.Summarize(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderHistoryTable(records, summary))
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of tasks to list (0 for all)")

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryRemoveCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one finished task; the id may be abbreviated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *queue.Store) error {
				rec, err := store.FindByPrefix(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no task matches %q", args[0])
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Forget one finished task; the transcript file is kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *queue.Store) error {
				rec, err := store.FindByPrefix(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no task matches %q", args[0])
				}
				if _, err := store.Delete(cmd.Context(), rec.TaskID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", rec.TaskID)
				return nil
			})
		},
	}
}

func withHistory(ctx *commandContext, fn func(*queue.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if errors.Is(err, queue.ErrDisabled) {
		return errors.New("history is disabled (history.enabled = false)")
	}
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func renderHistoryTable(records []queue.Record, summary queue.Summary) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		detail := rec.OutputPath
		if rec.Outcome != queue.OutcomeDone {
			detail = rec.ErrorKind
		}
		rows = append(rows, []string{
			shortID(rec.TaskID),
			rec.FinishedAt.Local().Format(historyTimeLayout),
			string(rec.Outcome),
			string(rec.PathUsed),
			truncate(rec.Title, 40),
			detail,
		})
	}
	cols := []column{{header: "ID"}, {header: "Finished"}, {header: "Outcome"}, {header: "Source"}, {header: "Title"}, {header: "Output / Error"}}
	caption := fmt.Sprintf("%d tasks: %d done, %d failed, %d cancelled", summary.Total, summary.Done, summary.Failed, summary.Cancelled)
	return renderTable(cols, rows, caption)
}

func printRecord(out io.Writer, rec *queue.Record) {
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-10s %s\n", label+":", value)
	}
	field("ID", rec.TaskID)
	field("URL", rec.URL)
	field("Title", rec.Title)
	field("Outcome", string(rec.Outcome))
	field("Source", string(rec.PathUsed))
	field("Format", rec.Format)
	field("Model", rec.Model)
	field("Output", rec.OutputPath)
	field("Error", strings.TrimSpace(rec.ErrorKind+" "+rec.ErrorMessage))
	field("Started", formatStamp(rec.StartedAt))
	field("Finished", formatStamp(rec.FinishedAt))
	if rec.Elapsed() > 0 {
		field("Elapsed", rec.Elapsed().Round(time.Second).String())
	}
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
