package app

import (
	"fmt"

	"speakmcp/internal/aggregator"
	"speakmcp/internal/config"
	"speakmcp/internal/history"
	"speakmcp/internal/lifecycle"
	"speakmcp/internal/localtools"
	"speakmcp/internal/mcpserver"
	"speakmcp/internal/orchestrator"
	"speakmcp/internal/telemetry"
	"speakmcp/pkg/logging"
)

// AggregatorName is the server name advertised in stdio mode.
const AggregatorName = "speakmcp"

// Services holds all the initialized services
type Services struct {
	Coordinator  *lifecycle.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Aggregator   *aggregator.Server
	// History is nil when history recording is disabled.
	History  *history.Store
	Observer *telemetry.ToolObserver
}

// InitializeServices creates the coordinator and everything that registers
// with it. Nothing is started yet.
func InitializeServices(cfg *Config, version string) (*Services, error) {
	speak := cfg.Speak
	if speak == nil {
		def := config.GetDefaultConfig()
		speak = &def
	}

	coord := lifecycle.New(lifecycle.Options{
		ShutdownTimeout:    speak.Shutdown.Timeout,
		ProcessGracePeriod: speak.Shutdown.ProcessGracePeriod,
		ForceGracePeriod:   speak.Shutdown.ForceGracePeriod,
	})

	observer, err := telemetry.NewGlobalToolObserver()
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry observer: %w", err)
	}

	var store *history.Store
	if speak.History.IsEnabled() {
		path := speak.History.Path
		if path == "" {
			path, err = history.DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		store, err = history.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		if err := coord.RegisterCleanupTask(store.CleanupTask()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to register history cleanup: %w", err)
		}
		logging.Debug("Bootstrap", "Recording tool calls to %s", path)
	}

	opts := orchestrator.Options{
		Coordinator: coord,
		Dialer: mcpserver.StdioDialer{
			CloseGracePeriod: speak.Shutdown.ProcessGracePeriod,
		},
		LocalTools: localtools.New(localtools.Options{
			BaseDir: speak.LocalTools.BaseDir,
		}),
		DefaultTimeout: config.DefaultServerTimeout,
		Observer:       observer,
	}
	// A nil *history.Store must not end up as a non-nil Recorder.
	if store != nil {
		opts.Recorder = store
	}
	orch := orchestrator.New(opts)

	return &Services{
		Coordinator:  coord,
		Orchestrator: orch,
		Aggregator:   aggregator.NewServer(AggregatorName, version, orch),
		History:      store,
		Observer:     observer,
	}, nil
}
