package mcpserver

import (
	"context"
	"testing"
	"time"

	"speakmcp/internal/config"
	"speakmcp/internal/mcpserver/mcptest"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHelper(t *testing.T, cfg config.ServerConfig) Client {
	t.Helper()
	c, err := StdioDialer{CloseGracePeriod: 500 * time.Millisecond}.Dial(context.Background(), "helper", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestStdioClient_HandshakeListAndCall(t *testing.T) {
	c := dialHelper(t, mcptest.ServerConfig(mcptest.ModeTools, "alpha", "fail"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.Initialize(ctx))

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"alpha", "fail"}, names)

	res, err := c.CallTool(ctx, "alpha", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, mcptest.EchoText("alpha", "hello"), resultText(t, res))

	res, err = c.CallTool(ctx, "fail", map[string]any{"text": "nope"})
	require.NoError(t, err, "tool-level failures are results, not errors")
	assert.True(t, res.IsError)
}

func TestStdioClient_CloseStopsServer(t *testing.T) {
	c := dialHelper(t, mcptest.ServerConfig(mcptest.ModeTools, "alpha"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Initialize(ctx))

	require.NoError(t, c.Close())
	select {
	case <-c.Process().Done():
	default:
		t.Fatal("process should have exited after Close")
	}
	assert.NoError(t, c.Close(), "Close is idempotent")
}

func TestStdioClient_CloseKillsUnresponsiveServer(t *testing.T) {
	c := dialHelper(t, mcptest.ServerConfig(mcptest.ModeHang))

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-c.Process().Done():
	default:
		t.Fatal("hanging server should have been killed")
	}
}

func TestStdioClient_InitializeFailsFastWhenServerExits(t *testing.T) {
	c := dialHelper(t, mcptest.ServerConfig(mcptest.ModeExit))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	err := c.Initialize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessExited)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestStdioClient_InitializeTimeout(t *testing.T) {
	c := dialHelper(t, mcptest.ServerConfig(mcptest.ModeHang))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := c.Initialize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStdioClient_MalformedToolList(t *testing.T) {
	c := dialHelper(t, mcptest.ServerConfig(mcptest.ModeUnnamedTool))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Initialize(ctx))

	_, err := c.ListTools(ctx)
	assert.ErrorIs(t, err, ErrMalformedToolList)
}

func TestStdioDialer_ValidatesConfig(t *testing.T) {
	_, err := StdioDialer{}.Dial(context.Background(), "bad", config.ServerConfig{})
	assert.ErrorIs(t, err, config.ErrCommandRequired)
}

func TestStdioDialer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StdioDialer{}.Dial(ctx, "x", mcptest.ServerConfig(mcptest.ModeTools))
	assert.ErrorIs(t, err, context.Canceled)
}
