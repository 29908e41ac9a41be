package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"speakmcp/internal/config"
	"speakmcp/internal/lifecycle"
	"speakmcp/pkg/logging"
)

// Application is the main application structure that bootstraps and runs
// speakmcp.
type Application struct {
	config   *Config
	services *Services

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewApplication initializes logging, loads the configuration and creates
// the services.
func NewApplication(cfg *Config, version string) (*Application, error) {
	a := &Application{
		config: cfg,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.initLogging()

	if cfg.Speak == nil {
		speak, err := loadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration")
			return nil, err
		}
		cfg.Speak = &speak
	}

	services, err := InitializeServices(cfg, version)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.services = services
	return a, nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		cfg, err := config.LoadConfigFromPath(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load configuration from path %s: %w", path, err)
		}
		logging.Info("Bootstrap", "Loaded configuration from %s", path)
		return cfg, nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Debug("Bootstrap", "Loaded layered configuration")
	return cfg, nil
}

func (a *Application) logLevel() logging.LogLevel {
	switch {
	case a.config.Debug:
		return logging.LevelDebug
	case a.config.LogLevel != "":
		return logging.ParseLevel(a.config.LogLevel)
	case a.config.Mode == ModeCommand:
		return logging.LevelWarn
	default:
		return logging.LevelInfo
	}
}

// initLogging logs to stderr. Stdout is reserved for command output and, in
// stdio mode, for the MCP protocol.
func (a *Application) initLogging() {
	logging.InitForCLI(a.logLevel(), a.stderr)
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Config returns the application configuration.
func (a *Application) Config() *Config {
	return a.config
}

func (a *Application) shutdownTimeout() time.Duration {
	if t := a.config.Speak.Shutdown.Timeout; t > 0 {
		return t
	}
	return config.DefaultShutdownTimeout
}

// Run connects the configured tool servers and serves until shutdown.
func (a *Application) Run(ctx context.Context) (err error) {
	coord := a.services.Coordinator
	defer coord.RecoverAndShutdown()

	if a.config.Mode == ModeServe {
		stopRenderer := a.startLogRenderer()
		defer stopRenderer()
	}

	stop := lifecycle.HandleSignals(ctx, coord, a.shutdownTimeout())
	defer stop()

	switch a.config.Mode {
	case ModeStdio:
		a.services.Orchestrator.Initialize(ctx, a.config.Speak.MCPServers)
		err = a.runStdioMode(ctx)
	default:
		err = a.runServeMode(ctx)
	}

	if shutdownErr := a.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// RunCommand connects the configured tool servers, runs fn and shuts
// everything down again, also when fn fails.
func (a *Application) RunCommand(ctx context.Context, fn func(ctx context.Context, s *Services) error) (err error) {
	coord := a.services.Coordinator
	defer coord.RecoverAndShutdown()

	stop := lifecycle.HandleSignals(ctx, coord, a.shutdownTimeout())
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-coord.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	a.services.Orchestrator.Initialize(ctx, a.config.Speak.MCPServers)
	err = fn(ctx, a.services)

	if shutdownErr := a.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// Shutdown retires every resource gracefully within the configured timeout.
func (a *Application) Shutdown() error {
	coord := a.services.Coordinator
	err := coord.GracefulShutdown(a.shutdownTimeout())
	if err != nil {
		logging.Error("Bootstrap", err, "Forced shutdown reported errors")
	} else if coord.Escalated() {
		logging.Warn("Bootstrap", "Shutdown exceeded %s and was forced", a.shutdownTimeout())
	}
	return err
}
