package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"speakmcp/pkg/logging"

	"github.com/charmbracelet/lipgloss"
)

// statusInterval is how often serve mode logs a status summary.
const statusInterval = 5 * time.Minute

// runStdioMode exposes the merged tools over stdin/stdout until the peer
// disconnects or shutdown begins.
func (a *Application) runStdioMode(ctx context.Context) error {
	srv := a.services.Aggregator
	srv.Sync()
	logging.Info("Stdio", "Serving %d tools over stdio", len(a.services.Orchestrator.GetAvailableTools()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, a.stdin, a.stdout)
	}()

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logging.Error("Stdio", err, "MCP server stopped")
			return err
		}
		logging.Info("Stdio", "Client disconnected")
		return nil
	case <-a.services.Coordinator.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

// startLogRenderer switches logging to host mode and renders entries to
// stderr. The returned function drains the channel and restores CLI logging.
func (a *Application) startLogRenderer() (stop func()) {
	entries := logging.InitForHost(a.logLevel())
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for entry := range entries {
			fmt.Fprintln(a.stderr, formatLogEntry(entry))
		}
	}()
	return func() {
		logging.CloseHostChannel()
		<-rendered
		a.initLogging()
	}
}

// runServeMode keeps the tool servers running until a signal or ctx ends
// it, logging a status summary periodically.
func (a *Application) runServeMode(ctx context.Context) error {
	coord := a.services.Coordinator
	orch := a.services.Orchestrator

	orch.Initialize(ctx, a.config.Speak.MCPServers)
	a.logStatus()

	ticker := coord.Every(statusInterval, a.logStatus)
	defer ticker.Stop()

	logging.Info("Serve", "Tool servers running. Press Ctrl+C to stop.")

	select {
	case <-coord.Done():
	case <-ctx.Done():
	}
	return nil
}

func (a *Application) logStatus() {
	status := a.services.Orchestrator.GetServerStatus()
	ids := make([]string, 0, len(status))
	for id := range status {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := status[id]
		if s.Error != "" {
			logging.Warn("Serve", "Server %s: %s (%s)", id, s.Status, s.Error)
			continue
		}
		logging.Info("Serve", "Server %s: %s, %d tools", id, s.Status, s.ToolCount)
	}
	logging.Info("Serve", "%d tools available", len(a.services.Orchestrator.GetAvailableTools()))
}

var (
	logTimeStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	logSubsystemStyle = lipgloss.NewStyle().Bold(true)
	logLevelStyles    = map[logging.LogLevel]lipgloss.Style{
		logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}),
		logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}),
		logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}),
		logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}),
	}
)

func formatLogEntry(e logging.LogEntry) string {
	line := fmt.Sprintf("%s %s %s %s",
		logTimeStyle.Render(e.Timestamp.Format("15:04:05")),
		logLevelStyles[e.Level].Render(fmt.Sprintf("%-5s", e.Level)),
		logSubsystemStyle.Render("["+e.Subsystem+"]"),
		e.Message,
	)
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	return line
}

