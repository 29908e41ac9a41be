package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"speakmcp/internal/aggregator"
	"speakmcp/internal/history"
	"speakmcp/internal/lifecycle"
	"speakmcp/internal/localtools"
	"speakmcp/internal/mcpserver"
	"speakmcp/internal/telemetry"
	"speakmcp/pkg/logging"
)

const subsystem = "Orchestrator"

// CleanupTaskName is the name the orchestrator registers with the
// Coordinator.
const CleanupTaskName = "mcp-orchestrator"

// cleanupPriority puts closing the tool servers ahead of other cleanup work.
const cleanupPriority = 10

// DefaultServerTimeout bounds spawn, handshake and discovery of one server
// when its config sets no timeout.
const DefaultServerTimeout = 10 * time.Second

// Observer receives telemetry for tool calls and server connects.
// *telemetry.ToolObserver implements it.
type Observer interface {
	ObserveToolCall(ctx context.Context, obs telemetry.ToolCallObservation)
	ObserveConnect(ctx context.Context, obs telemetry.ConnectObservation)
}

// Recorder persists finished tool calls. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Coordinator tracks server processes and runs Cleanup on shutdown.
	// Optional.
	Coordinator *lifecycle.Coordinator
	// Dialer launches servers. Defaults to mcpserver.StdioDialer.
	Dialer mcpserver.Dialer
	// LocalTools provides the built-in tools. Defaults to localtools.New
	// with default options.
	LocalTools *localtools.Toolset
	// DefaultTimeout applies to servers without their own timeout.
	DefaultTimeout time.Duration
	// Observer and Recorder are optional.
	Observer Observer
	Recorder Recorder
}

// Orchestrator owns the tool server pool and the merged tool registry.
type Orchestrator struct {
	coordinator    *lifecycle.Coordinator
	dialer         mcpserver.Dialer
	local          *localtools.Toolset
	registry       *aggregator.Registry
	defaultTimeout time.Duration
	observer       Observer
	recorder       Recorder

	// initMu serializes Initialize and Cleanup.
	initMu sync.Mutex

	mu          sync.RWMutex
	servers     map[string]*serverConn
	generation  uint64
	initialized bool
	// cancelInit aborts the connects of a running Initialize.
	cancelInit context.CancelFunc
	// cleanupsWaiting counts Cleanup calls waiting for initMu.
	cleanupsWaiting int
}

// New creates an orchestrator with the built-in tools registered. When a
// Coordinator is given, Cleanup is registered with it as a CleanupTask.
func New(opts Options) *Orchestrator {
	if opts.Dialer == nil {
		opts.Dialer = mcpserver.StdioDialer{}
	}
	if opts.LocalTools == nil {
		opts.LocalTools = localtools.New(localtools.Options{})
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultServerTimeout
	}

	o := &Orchestrator{
		coordinator:    opts.Coordinator,
		dialer:         opts.Dialer,
		local:          opts.LocalTools,
		registry:       aggregator.NewRegistry(),
		defaultTimeout: opts.DefaultTimeout,
		observer:       opts.Observer,
		recorder:       opts.Recorder,
		servers:        make(map[string]*serverConn),
	}
	o.registerLocalTools()

	if o.coordinator != nil {
		if err := o.coordinator.RegisterCleanupTask(o.CleanupTask()); err != nil {
			logging.Error(subsystem, err, "Failed to register cleanup task")
		}
	}
	return o
}

func (o *Orchestrator) registerLocalTools() {
	for _, desc := range o.local.Descriptors() {
		if err := o.registry.Register(desc); err != nil {
			logging.Error(subsystem, err, "Failed to register built-in tool %s", desc.Name)
		}
	}
}

// CleanupTask returns the task that runs Cleanup during graceful shutdown.
func (o *Orchestrator) CleanupTask() lifecycle.CleanupTask {
	return lifecycle.CleanupTask{
		Name:     CleanupTaskName,
		Priority: cleanupPriority,
		Cleanup: func(ctx context.Context) error {
			o.Cleanup(ctx)
			return nil
		},
	}
}

// GetAvailableTools returns a snapshot of the merged tool list.
func (o *Orchestrator) GetAvailableTools() []aggregator.ToolDescriptor {
	return o.registry.List()
}

// GetServerStatus returns the status of every configured server.
func (o *Orchestrator) GetServerStatus() map[string]ServerStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]ServerStatus, len(o.servers))
	for id, conn := range o.servers {
		out[id] = conn.state.status()
	}
	return out
}

// Cleanup closes every server connection, untracks their processes and
// empties the registry and status map. Close failures are logged. Servers
// still closing when ctx ends stay tracked with the Coordinator. A running
// Initialize is aborted first.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	o.mu.Lock()
	o.cleanupsWaiting++
	if o.cancelInit != nil {
		o.cancelInit()
	}
	o.mu.Unlock()

	o.initMu.Lock()
	defer o.initMu.Unlock()

	o.mu.Lock()
	o.cleanupsWaiting--
	o.mu.Unlock()

	o.cleanupLocked(ctx)
}

func (o *Orchestrator) cleanupLocked(ctx context.Context) {
	o.mu.Lock()
	o.generation++
	servers := o.servers
	o.servers = make(map[string]*serverConn)
	o.initialized = false
	o.registry.Clear()
	o.mu.Unlock()

	ids := make([]string, 0, len(servers))
	for id, conn := range servers {
		if conn.client() != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		logging.Debug(subsystem, "Cleanup: no connected servers")
		return
	}

	logging.Info(subsystem, "Closing %d tool server(s)", len(ids))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string, client mcpserver.Client) {
			defer wg.Done()
			o.closeClient(id, client)
		}(id, servers[id].client())
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn(subsystem, "Cleanup interrupted before all servers closed: %v", ctx.Err())
	}
}

// closeClient closes one connection and stops tracking its process.
func (o *Orchestrator) closeClient(id string, client mcpserver.Client) {
	if err := client.Close(); err != nil {
		logging.Error(subsystem, err, "Failed to close server %s", id)
	}
	o.untrack(id)
}

func (o *Orchestrator) track(id string, client mcpserver.Client) {
	if o.coordinator == nil {
		return
	}
	proc := client.Process()
	if proc == nil {
		return
	}
	o.coordinator.TrackProcess(processName(id), proc)
}

func (o *Orchestrator) untrack(id string) {
	if o.coordinator == nil {
		return
	}
	o.coordinator.UntrackProcess(processName(id))
}

func (o *Orchestrator) shuttingDown() bool {
	return o.coordinator != nil && o.coordinator.State() != lifecycle.StateIdle
}

// errShuttingDown marks servers skipped because shutdown has begun.
var errShuttingDown = errors.New("shutdown in progress")
