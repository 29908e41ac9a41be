package app

import (
	"speakmcp/internal/config"
)

// Mode selects how the application runs.
type Mode int

const (
	// ModeCommand runs a single CLI command and exits. Only warnings and
	// errors are logged unless debug is on.
	ModeCommand Mode = iota
	// ModeServe keeps the tool servers running until a signal arrives.
	ModeServe
	// ModeStdio serves the merged tool namespace as an MCP server over
	// stdin/stdout.
	ModeStdio
)

func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeStdio:
		return "stdio"
	default:
		return "command"
	}
}

// Config holds the application configuration
type Config struct {
	Mode Mode

	// ConfigPath overrides the layered config lookup when set.
	ConfigPath string

	// Debug settings
	Debug bool
	// LogLevel ("debug", "info", "warn", "error") overrides the mode's
	// default level. Debug takes precedence.
	LogLevel string

	// Speak is the loaded speakmcp configuration. NewApplication fills it
	// in when it is nil.
	Speak *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(mode Mode, configPath string, debug bool) *Config {
	return &Config{
		Mode:       mode,
		ConfigPath: configPath,
		Debug:      debug,
	}
}
