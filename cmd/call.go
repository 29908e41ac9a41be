package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"speakmcp/internal/app"
	"speakmcp/internal/orchestrator"

	"github.com/atotto/clipboard"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var (
	callArgs string
	callCopy bool
)

// errToolFailed marks a call whose result came back with IsError set.
var errToolFailed = errors.New("tool call failed")

// callCmd invokes a single tool from the merged namespace
var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Call a tool and print its result",
	Long: `Connects every enabled tool server and calls one tool from the merged
namespace. Arguments are passed as a JSON object.

Examples:
  speakmcp call list_files
  speakmcp call create_file --args '{"path":"notes.txt","content":"hello"}'
  speakmcp call read_file --args '{"path":"notes.txt"}' --copy`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func parseCallArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	toolArgs, err := parseCallArgs(callArgs)
	if err != nil {
		return err
	}

	application, err := newCommandApp()
	if err != nil {
		return err
	}

	var result *mcp.CallToolResult
	err = application.RunCommand(cmd.Context(), func(ctx context.Context, s *app.Services) error {
		res, err := s.Orchestrator.ExecuteToolCall(ctx, orchestrator.ToolCallRequest{Name: args[0], Arguments: toolArgs})
		result = res
		return err
	})
	if err != nil {
		if orchestrator.IsUnknownTool(err) {
			return fmt.Errorf("%w (run 'speakmcp tools' to list available tools)", err)
		}
		return err
	}

	text := callResultText(result)
	if result.IsError {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(text))
		return errToolFailed
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)

	if callCopy {
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("failed to copy result to clipboard: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("(copied to clipboard)"))
	}
	return nil
}

// callResultText joins the text parts of a result; other content types are
// summarized by type.
func callResultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		default:
			parts = append(parts, fmt.Sprintf("[%T]", c))
		}
	}
	return strings.Join(parts, "\n")
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callArgs, "args", "", "Tool arguments as a JSON object")
	callCmd.Flags().BoolVar(&callCopy, "copy", false, "Copy the result text to the clipboard")
}
