package cmd

import (
	"os"

	"speakmcp/internal/app"
	"speakmcp/internal/mcpserver"

	"github.com/spf13/cobra"
)

var (
	// rootConfigPath overrides the layered configuration lookup.
	rootConfigPath string
	// rootDebug enables debug logging for every command.
	rootDebug bool
	// rootLogLevel overrides the default log level of the mode.
	rootLogLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "speakmcp",
	Short: "Run and call MCP tool servers for dictation post-processing",
	Long: `speakmcp manages the MCP tool servers a dictation post-processing model
can call. It launches each configured server as a child process, merges
their tools with a set of built-in tools (create_file, read_file, list_files,
send_notification) and routes tool calls to the right place.

Configuration is read from ~/.config/speakmcp/config.yaml and
./.speakmcp/config.yaml, or from the file given with --config.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unknown tools, failed connections)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command and the MCP handshake.
func SetVersion(v string) {
	rootCmd.Version = v
	mcpserver.ClientVersion = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "speakmcp version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// newAppConfig builds the application config from the persistent flags.
func newAppConfig(mode app.Mode) *app.Config {
	cfg := app.NewConfig(mode, rootConfigPath, rootDebug)
	cfg.LogLevel = rootLogLevel
	return cfg
}

// newCommandApp creates the application for a one-shot command.
func newCommandApp() (*app.Application, error) {
	return app.NewApplication(newAppConfig(app.ModeCommand), rootCmd.Version)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Configuration file (default: layered ~/.config/speakmcp and ./.speakmcp)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn or error (default: warn for commands, info for serve)")

	rootCmd.AddCommand(newVersionCmd())
}
