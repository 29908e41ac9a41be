package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"speakmcp/internal/app"
	"speakmcp/internal/orchestrator"

	"github.com/spf13/cobra"
)

var statusOutputFormat string

// statusCmd connects the configured servers and reports how each one fared
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection status of every configured tool server",
	Long: `Connects every enabled tool server and reports per server whether it
connected, how many tools it contributed, or why it failed. Disabled servers
are listed but never started.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(statusOutputFormat)
	if err != nil {
		return err
	}

	application, err := newCommandApp()
	if err != nil {
		return err
	}

	var status map[string]orchestrator.ServerStatus
	err = application.RunCommand(cmd.Context(), func(ctx context.Context, s *app.Services) error {
		status = s.Orchestrator.GetServerStatus()
		return nil
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != OutputFormatTable {
		return writeStructured(out, format, status)
	}
	if len(status) == 0 {
		fmt.Fprintln(out, "No tool servers configured")
		return nil
	}

	ids := make([]string, 0, len(status))
	for id := range status {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := &table{headers: []string{"SERVER", "STATUS", "TOOLS", "ERROR"}}
	for _, id := range ids {
		s := status[id]
		t.rows = append(t.rows, []string{id, s.Status, strconv.Itoa(s.ToolCount), truncate(s.Error, maxDescriptionWidth)})
	}
	t.style = func(row, col int, padded string) string {
		if col != 1 {
			return padded
		}
		switch status[ids[row]].Status {
		case orchestrator.StatusConnected:
			return successStyle.Render(padded)
		case orchestrator.StatusFailed:
			return errorStyle.Render(padded)
		default:
			return mutedStyle.Render(padded)
		}
	}
	t.render(out)
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}
