package cmd

import (
	"fmt"
	"time"

	"speakmcp/internal/config"

	"github.com/spf13/cobra"
)

var testServerTimeout time.Duration

// testServerCmd checks that a server command can be spawned, without
// registering it anywhere
var testServerCmd = &cobra.Command{
	Use:   "test-server <id> -- <command> [args...]",
	Short: "Check that a tool server command can be started",
	Long: `Spawns the given command the way a configured tool server would be
started, then stops it again. Nothing is added to the tool namespace.

Example:
  speakmcp test-server files -- npx -y @modelcontextprotocol/server-filesystem /tmp`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTestServer,
}

func runTestServer(cmd *cobra.Command, args []string) error {
	id := args[0]
	cfg := config.ServerConfig{
		Command: args[1],
		Args:    append([]string{}, args[2:]...),
		Timeout: testServerTimeout,
	}

	application, err := newCommandApp()
	if err != nil {
		return err
	}

	res := application.Services().Orchestrator.TestServerConnection(cmd.Context(), id, cfg)
	shutdownErr := application.Shutdown()

	out := cmd.OutOrStdout()
	if !res.Success {
		fmt.Fprintf(out, "%s %s: %s\n", errorStyle.Render("FAIL"), id, res.Error)
		return fmt.Errorf("server %s could not be started", id)
	}
	fmt.Fprintf(out, "%s %s: server started\n", successStyle.Render("OK"), id)
	return shutdownErr
}

func init() {
	rootCmd.AddCommand(testServerCmd)
	testServerCmd.Flags().DurationVar(&testServerTimeout, "timeout", 0, "Start timeout (default: the configured server timeout)")
}
