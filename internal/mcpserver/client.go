package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"speakmcp/internal/lifecycle"
	"speakmcp/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName and ClientVersion identify speakmcp in the MCP handshake.
var (
	ClientName    = "speakmcp"
	ClientVersion = "dev"
)

const (
	defaultCloseGracePeriod = 2 * time.Second
	defaultForceWait        = 500 * time.Millisecond
)

// Client defines the operations the orchestrator needs from a connected
// tool server.
type Client interface {
	// Initialize performs the MCP protocol handshake.
	Initialize(ctx context.Context) error

	// ListTools returns the tools the server advertises.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool invokes a tool and returns the server's result unchanged.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)

	// Close shuts the connection down and makes sure the process is gone.
	Close() error

	// Process is the child process backing the connection.
	Process() lifecycle.Process
}

// StdioClient talks MCP over the stdio pipes of a spawned Process.
type StdioClient struct {
	id         string
	proc       *Process
	client     *client.Client
	closeGrace time.Duration

	startOnce sync.Once
	startErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Client = (*StdioClient)(nil)

// NewStdioClient wraps proc in an mcp-go client. The connection is not
// usable until Initialize has been called.
func NewStdioClient(id string, proc *Process, closeGrace time.Duration) *StdioClient {
	if closeGrace <= 0 {
		closeGrace = defaultCloseGracePeriod
	}
	// Stderr is consumed by the Process log forwarder.
	t := transport.NewIO(proc.Stdout(), proc.Stdin(), io.NopCloser(strings.NewReader("")))
	return &StdioClient{
		id:         id,
		proc:       proc,
		client:     client.NewClient(t),
		closeGrace: closeGrace,
	}
}

// Process implements Client.
func (c *StdioClient) Process() lifecycle.Process {
	return c.proc
}

// Initialize implements Client.
func (c *StdioClient) Initialize(ctx context.Context) error {
	ctx, cancel := c.bindToProcess(ctx)
	defer cancel()

	// The transport outlives this call, so it must not inherit the
	// handshake deadline.
	c.startOnce.Do(func() {
		c.startErr = c.client.Start(context.WithoutCancel(ctx))
	})
	if c.startErr != nil {
		return fmt.Errorf("failed to start transport for %s: %w", c.id, c.startErr)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: ClientVersion,
	}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	result, err := c.client.Initialize(ctx, req)
	if err != nil {
		return c.wrapErr(ctx, "initialize", err)
	}
	logging.Debug(c.subsystem(), "Connected to %s %s (protocol %s)",
		result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)
	return nil
}

// ListTools implements Client.
func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	ctx, cancel := c.bindToProcess(ctx)
	defer cancel()

	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, c.wrapErr(ctx, "list tools", err)
	}
	for i, tool := range result.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return nil, fmt.Errorf("%w: tool %d of %s has no name", ErrMalformedToolList, i, c.id)
		}
	}
	return result.Tools, nil
}

// CallTool implements Client.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := c.bindToProcess(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, c.wrapErr(ctx, "call tool "+name, err)
	}
	return result, nil
}

// Close implements Client. Closing stdin asks the server to exit; it is
// killed if it is still running after the grace period.
func (c *StdioClient) Close() error {
	c.closeOnce.Do(func() {
		if err := c.client.Close(); err != nil {
			logging.Debug(c.subsystem(), "Transport close: %v", err)
		}

		timer := time.NewTimer(c.closeGrace)
		defer timer.Stop()

		select {
		case <-c.proc.Done():
		case <-timer.C:
			logging.Warn(c.subsystem(), "Server did not exit within %s after close, killing", c.closeGrace)
			if err := c.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				c.closeErr = fmt.Errorf("kill %s: %w", c.id, err)
			}
			select {
			case <-c.proc.Done():
			case <-time.After(defaultForceWait):
				if c.closeErr == nil {
					c.closeErr = fmt.Errorf("server %s did not exit after kill", c.id)
				}
			}
		}
		c.proc.closeReaders()
	})
	return c.closeErr
}

func (c *StdioClient) subsystem() string {
	return "MCPServer-" + c.id
}

// bindToProcess derives a context that is cancelled when the server process
// exits, so requests to a dead server fail at once instead of timing out.
func (c *StdioClient) bindToProcess(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-c.proc.Done():
			cancel(ErrProcessExited)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(nil) }
}

// exitSettleTime is how long an error path waits to see whether the server
// process is on its way out, so a write to a dead pipe reports the exit.
const exitSettleTime = 100 * time.Millisecond

func (c *StdioClient) wrapErr(ctx context.Context, op string, err error) error {
	if errors.Is(context.Cause(ctx), ErrProcessExited) || c.exitedWithin(exitSettleTime) {
		if line := c.proc.LastStderrLine(); line != "" {
			return fmt.Errorf("%s %s: %w: %s", op, c.id, ErrProcessExited, line)
		}
		return fmt.Errorf("%s %s: %w", op, c.id, ErrProcessExited)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", op, c.id, ctxErr)
	}
	return fmt.Errorf("%s %s: %w", op, c.id, err)
}

func (c *StdioClient) exitedWithin(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.proc.Done():
		return true
	case <-timer.C:
		return false
	}
}
