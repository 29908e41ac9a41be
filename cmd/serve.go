package cmd

import (
	"context"
	"fmt"

	"speakmcp/internal/app"

	"github.com/spf13/cobra"
)

// serveStdio exposes the merged tools as an MCP server on stdin/stdout
// instead of only keeping the tool servers running.
var serveStdio bool

// serveCmd defines the serve command structure.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configured tool servers and keep them running",
	Long: `Starts every enabled tool server from the configuration, discovers their
tools and keeps them running until interrupted.

A first Ctrl+C (or SIGTERM) shuts down gracefully: cleanup tasks run, then
every server process is asked to exit and killed if it does not. A second
signal forces the shutdown.

With --stdio the merged tool namespace (built-in tools plus every connected
server's tools) is served as a single MCP server over stdin/stdout, so other
MCP hosts can use it. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	mode := app.ModeServe
	if serveStdio {
		mode = app.ModeStdio
	}

	application, err := app.NewApplication(newAppConfig(mode), rootCmd.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Serve the merged tools as an MCP server over stdin/stdout")
}
