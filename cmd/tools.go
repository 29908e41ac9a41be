package cmd

import (
	"context"
	"fmt"

	"speakmcp/internal/aggregator"
	"speakmcp/internal/app"

	"github.com/spf13/cobra"
)

var toolsOutputFormat string

// toolsCmd lists the merged tool namespace
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List all available tools",
	Long: `Connects every enabled tool server, then lists the merged tool namespace:
the built-in tools followed by the tools each connected server contributed.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

type toolOutput struct {
	Name        string         `json:"name" yaml:"name"`
	Owner       string         `json:"owner" yaml:"owner"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
}

func runTools(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(toolsOutputFormat)
	if err != nil {
		return err
	}

	application, err := newCommandApp()
	if err != nil {
		return err
	}

	var tools []aggregator.ToolDescriptor
	err = application.RunCommand(cmd.Context(), func(ctx context.Context, s *app.Services) error {
		tools = s.Orchestrator.GetAvailableTools()
		return nil
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != OutputFormatTable {
		list := make([]toolOutput, len(tools))
		for i, t := range tools {
			list[i] = toolOutput{Name: t.Name, Owner: t.Owner, Description: t.Description, InputSchema: t.InputSchema}
		}
		return writeStructured(out, format, list)
	}

	t := &table{headers: []string{"NAME", "OWNER", "DESCRIPTION"}}
	for _, tool := range tools {
		t.rows = append(t.rows, []string{tool.Name, tool.Owner, truncate(tool.Description, maxDescriptionWidth)})
	}
	t.style = func(row, col int, padded string) string {
		if col == 1 && tools[row].IsLocal() {
			return mutedStyle.Render(padded)
		}
		return padded
	}
	t.render(out)
	fmt.Fprintf(out, "\n%d tools\n", len(tools))
	return nil
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().StringVarP(&toolsOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}
