package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"speakmcp/internal/aggregator"
	"speakmcp/internal/config"
	"speakmcp/internal/mcpserver"
	"speakmcp/internal/telemetry"
	"speakmcp/pkg/logging"
)

// connectResult is the outcome of bringing up one server.
type connectResult struct {
	id     string
	client mcpserver.Client
	tools  []aggregator.ToolDescriptor
	err    error
}

// Initialize (re)builds the server pool from servers. A previous pool is
// cleaned up first. It returns once every server has either connected or
// failed; a single server's failure never fails the call.
func (o *Orchestrator) Initialize(ctx context.Context, servers map[string]config.ServerConfig) {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	initialized := o.initialized
	o.cancelInit = cancel
	if o.cleanupsWaiting > 0 {
		cancel()
	}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelInit = nil
		o.mu.Unlock()
	}()

	if initialized {
		logging.Info(subsystem, "Re-initializing, closing current servers first")
		o.cleanupLocked(ctx)
	}

	ids := make([]string, 0, len(servers))
	for id := range servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	shuttingDown := o.shuttingDown()

	o.mu.Lock()
	o.generation++
	gen := o.generation
	o.initialized = true
	o.servers = make(map[string]*serverConn, len(ids))
	o.registry.Clear()
	o.registerLocalTools()

	var pending []string
	for _, id := range ids {
		conn := &serverConn{id: id, config: servers[id]}
		switch {
		case conn.config.Disabled:
			conn.state = stateDisabled{}
		case shuttingDown:
			conn.state = stateFailed{err: errShuttingDown}
		default:
			conn.state = stateConnecting{}
			pending = append(pending, id)
		}
		o.servers[id] = conn
	}
	o.mu.Unlock()

	if shuttingDown {
		logging.Warn(subsystem, "Shutdown in progress, not starting tool servers")
	}
	if len(pending) == 0 {
		logging.Info(subsystem, "No tool servers to connect, %d built-in tools available", o.registry.Len())
		return
	}

	logging.Info(subsystem, "Connecting %d tool server(s)", len(pending))

	results := make([]connectResult, len(pending))
	var wg sync.WaitGroup
	for i, id := range pending {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = o.connect(ctx, id, servers[id])
		}(i, id)
	}
	wg.Wait()

	connected := 0
	for _, res := range results {
		if o.settle(gen, res) {
			connected++
		}
	}
	logging.Info(subsystem, "Initialized: %d/%d server(s) connected, %d tools available",
		connected, len(pending), o.registry.Len())
}

// connect spawns one server, tracks its process, performs the handshake and
// lists its tools, all within the server's timeout. On failure nothing of
// the server is left running.
func (o *Orchestrator) connect(ctx context.Context, id string, cfg config.ServerConfig) (res connectResult) {
	res.id = id
	start := time.Now()
	timeout := cfg.EffectiveTimeout(o.defaultTimeout)

	defer func() {
		obs := telemetry.ConnectObservation{
			ServerID:  id,
			Start:     start,
			Duration:  time.Since(start),
			Success:   res.err == nil,
			ToolCount: len(res.tools),
		}
		if res.err != nil {
			obs.Error = res.err.Error()
		}
		if o.observer != nil {
			o.observer.ObserveConnect(ctx, obs)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.dialer.Dial(cctx, id, cfg)
	if err != nil {
		res.err = fmt.Errorf("failed to start server: %w", err)
		logging.Error(subsystem, err, "Failed to start server %s", id)
		return res
	}
	o.track(id, client)

	fail := func(step string, err error) connectResult {
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("aborted: %w", err)
		case cctx.Err() != nil:
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		logging.Error(subsystem, err, "Server %s failed during %s", id, step)
		o.closeClient(id, client)
		return connectResult{id: id, err: fmt.Errorf("%s failed: %w", step, err)}
	}

	if err := client.Initialize(cctx); err != nil {
		return fail("initialize", err)
	}

	tools, err := client.ListTools(cctx)
	if err != nil {
		return fail("tool discovery", err)
	}

	descs := make([]aggregator.ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		desc, err := aggregator.FromMCPTool(id, tool)
		if err != nil {
			return fail("tool discovery", err)
		}
		descs = append(descs, desc)
	}

	logging.Info(subsystem, "Server %s connected with %d tool(s) in %s", id, len(descs), time.Since(start).Round(time.Millisecond))
	res.client = client
	res.tools = descs
	return res
}

// settle records a connect result. Results from a superseded generation are
// closed and dropped. It reports whether the server is now connected.
func (o *Orchestrator) settle(gen uint64, res connectResult) bool {
	o.mu.Lock()
	conn, ok := o.servers[res.id]
	if gen != o.generation || !ok {
		o.mu.Unlock()
		if res.client != nil {
			logging.Debug(subsystem, "Discarding stale connection to %s", res.id)
			o.closeClient(res.id, res.client)
		}
		return false
	}

	if res.err != nil {
		conn.state = stateFailed{err: res.err}
		o.mu.Unlock()
		return false
	}

	merged := o.registry.MergeServer(res.id, res.tools)
	conn.state = stateConnected{client: res.client, tools: merged.Added}
	o.mu.Unlock()

	o.watchExit(gen, res.id, res.client)

	if len(merged.Skipped) > 0 {
		logging.Warn(subsystem, "Server %s: %d tool(s) skipped because of name collisions: %v",
			res.id, len(merged.Skipped), merged.Skipped)
	}
	return true
}

// watchExit withdraws a connected server's tools and marks it failed when
// its process exits on its own. Exits caused by Cleanup or a newer
// Initialize are ignored.
func (o *Orchestrator) watchExit(gen uint64, id string, client mcpserver.Client) {
	proc := client.Process()
	if proc == nil {
		return
	}
	go func() {
		<-proc.Done()

		o.mu.Lock()
		conn, ok := o.servers[id]
		if gen != o.generation || !ok || conn.client() != client {
			o.mu.Unlock()
			return
		}
		removed := o.registry.RemoveOwner(id)
		conn.state = stateFailed{err: mcpserver.ErrProcessExited}
		o.mu.Unlock()

		logging.Warn(subsystem, "Server %s exited, %d tool(s) withdrawn", id, removed)
		if err := client.Close(); err != nil {
			logging.Debug(subsystem, "Closing exited server %s: %v", id, err)
		}
	}()
}
