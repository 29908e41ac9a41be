package cmd

import (
	"fmt"
	"strconv"
	"time"

	"speakmcp/internal/history"

	"github.com/spf13/cobra"
)

var (
	historyLimit        int
	historyOutputFormat string
)

// historyCmd shows recorded tool calls
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent tool calls",
	Long: `Shows the most recent tool calls recorded in the history database,
newest first. Recording is controlled by the history section of the
configuration.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(historyOutputFormat)
	if err != nil {
		return err
	}

	application, err := newCommandApp()
	if err != nil {
		return err
	}
	defer application.Shutdown()

	out := cmd.OutOrStdout()
	store := application.Services().History
	if store == nil {
		fmt.Fprintln(out, "history is disabled")
		return nil
	}

	entries, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if format != OutputFormatTable {
		if entries == nil {
			entries = []history.Entry{}
		}
		return writeStructured(out, format, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No tool calls recorded")
		return nil
	}

	t := &table{headers: []string{"TIME", "TOOL", "OWNER", "DURATION", "RESULT"}}
	for _, e := range entries {
		t.rows = append(t.rows, []string{
			e.StartedAt.Local().Format(time.DateTime),
			e.Tool,
			e.Owner,
			strconv.FormatInt(e.Duration.Milliseconds(), 10) + "ms",
			truncate(e.Result, maxDescriptionWidth),
		})
	}
	t.style = func(row, col int, padded string) string {
		if col == 4 && entries[row].IsError {
			return errorStyle.Render(padded)
		}
		return padded
	}
	t.render(out)
	return nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of calls to show")
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}
