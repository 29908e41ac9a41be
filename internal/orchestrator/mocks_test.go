package orchestrator

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"speakmcp/internal/config"
	"speakmcp/internal/history"
	"speakmcp/internal/lifecycle"
	"speakmcp/internal/localtools"
	"speakmcp/internal/mcpserver"
	"speakmcp/internal/telemetry"

	"github.com/mark3labs/mcp-go/mcp"
)

var nextPid int32 = 1000

type mockProcess struct {
	pid      int
	done     chan struct{}
	doneOnce sync.Once
}

func newMockProcess() *mockProcess {
	return &mockProcess{pid: int(atomic.AddInt32(&nextPid, 1)), done: make(chan struct{})}
}

func (p *mockProcess) Pid() int { return p.pid }
func (p *mockProcess) Signal(os.Signal) error { p.exit(); return nil }
func (p *mockProcess) Kill() error { p.exit(); return nil }
func (p *mockProcess) Done() <-chan struct{} { return p.done }
func (p *mockProcess) exit() { p.doneOnce.Do(func() { close(p.done) }) }
func (p *mockProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

type mockClient struct {
	tools    []mcp.Tool
	initErr  error
	listErr  error
	block    bool // Initialize waits for ctx
	closeErr error
	callFn   func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)

	proc   *mockProcess
	closed atomic.Int32
}

var _ mcpserver.Client = (*mockClient)(nil)

func newMockClient(toolNames ...string) *mockClient {
	c := &mockClient{proc: newMockProcess()}
	for _, name := range toolNames {
		c.tools = append(c.tools, mcp.NewTool(name, mcp.WithDescription("mock "+name)))
	}
	return c
}

func (c *mockClient) Initialize(ctx context.Context) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.initErr
}

func (c *mockClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.tools, nil
}

func (c *mockClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.callFn != nil {
		return c.callFn(ctx, name, args)
	}
	return mcp.NewToolResultText("remote " + name), nil
}

func (c *mockClient) Close() error {
	c.closed.Add(1)
	c.proc.exit()
	return c.closeErr
}

func (c *mockClient) Process() lifecycle.Process { return c.proc }

func (c *mockClient) isClosed() bool { return c.closed.Load() > 0 }

type mockDialer struct {
	mu      sync.Mutex
	clients map[string]*mockClient
	errs    map[string]error
	dialed  []string
}

func newMockDialer() *mockDialer {
	return &mockDialer{clients: make(map[string]*mockClient), errs: make(map[string]error)}
}

func (d *mockDialer) Dial(ctx context.Context, id string, cfg config.ServerConfig) (mcpserver.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, id)
	if err := d.errs[id]; err != nil {
		return nil, err
	}
	c, ok := d.clients[id]
	if !ok {
		return nil, errors.New("no mock client for " + id)
	}
	return c, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

type recordingNotifier struct {
	mu             sync.Mutex
	title, message string
}

func (n *recordingNotifier) Notify(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.title, n.message = title, message
	return nil
}

type mockObserver struct {
	mu       sync.Mutex
	calls    []telemetry.ToolCallObservation
	connects []telemetry.ConnectObservation
}

func (m *mockObserver) ObserveToolCall(ctx context.Context, obs telemetry.ToolCallObservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, obs)
}

func (m *mockObserver) ObserveConnect(ctx context.Context, obs telemetry.ConnectObservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, obs)
}

type mockRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *mockRecorder) Record(ctx context.Context, e history.Entry) (history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

func newTestOrchestrator(t *testing.T, dialer mcpserver.Dialer, coord *lifecycle.Coordinator) (*Orchestrator, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	o := New(Options{
		Coordinator: coord,
		Dialer:      dialer,
		LocalTools:  localtools.New(localtools.Options{BaseDir: t.TempDir(), Notifier: n}),
	})
	t.Cleanup(func() { o.Cleanup(context.Background()) })
	return o, n
}

func toolNames(o *Orchestrator) []string {
	var names []string
	for _, d := range o.GetAvailableTools() {
		names = append(names, d.Name)
	}
	return names
}

func server(cmd string) config.ServerConfig {
	return config.ServerConfig{Command: cmd, Args: []string{}}
}
