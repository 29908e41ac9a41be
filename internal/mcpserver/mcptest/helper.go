// Package mcptest provides real stdio MCP tool servers for tests. A test
// binary re-executes itself as a helper process (the GO_WANT_HELPER_PROCESS
// pattern) and the helper serves MCP over its stdin/stdout with mcp-go.
//
// Usage in a package under test:
//
//	func TestHelperProcess(t *testing.T) { mcptest.MaybeRun() }
//
//	cfg := mcptest.ServerConfig("tools", "alpha", "beta")
package mcptest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"speakmcp/internal/config"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HelperEnv switches a test binary into helper mode.
const HelperEnv = "GO_WANT_HELPER_PROCESS"

// Helper modes.
const (
	// ModeTools serves the tool names given as extra arguments. Every tool
	// echoes its "text" argument; a tool named "fail" reports an error result.
	ModeTools = "tools"
	// ModeExit writes a line to stderr and exits with status 3.
	ModeExit = "exit"
	// ModeHang never answers and never exits on its own.
	ModeHang = "hang"
	// ModeSlowInit sleeps for the duration given as first extra argument
	// before serving ModeTools with the remaining arguments.
	ModeSlowInit = "slow-init"
	// ModeUnnamedTool advertises a tool with an empty name.
	ModeUnnamedTool = "unnamed-tool"
)

// ExitMessage is what ModeExit writes to stderr.
const ExitMessage = "fatal: missing API key"

// ServerConfig returns a config entry that launches the running test binary
// as a helper in the given mode.
func ServerConfig(mode string, extra ...string) config.ServerConfig {
	args := []string{"-test.run=TestHelperProcess", "--", mode}
	args = append(args, extra...)
	return config.ServerConfig{
		Command: os.Args[0],
		Args:    args,
		Env:     map[string]string{HelperEnv: "1"},
	}
}

// MaybeRun turns the current process into a helper server when HelperEnv is
// set, and never returns in that case.
func MaybeRun() {
	if os.Getenv(HelperEnv) != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "mcptest: no helper mode given")
		os.Exit(2)
	}
	mode, extra := args[1], args[2:]

	switch mode {
	case ModeTools:
		serve(NewToolServer("helper", extra...))
	case ModeSlowInit:
		if len(extra) > 0 {
			if d, err := time.ParseDuration(extra[0]); err == nil {
				time.Sleep(d)
			}
			extra = extra[1:]
		}
		serve(NewToolServer("helper", extra...))
	case ModeUnnamedTool:
		s := NewToolServer("helper", "ok")
		s.AddTool(mcp.Tool{Name: "", Description: "broken"}, echoHandler(""))
		serve(s)
	case ModeExit:
		fmt.Fprintln(os.Stderr, ExitMessage)
		os.Exit(3)
	case ModeHang:
		time.Sleep(time.Hour)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "mcptest: unknown helper mode %q\n", mode)
		os.Exit(2)
	}
}

func serve(s *server.MCPServer) {
	stdio := server.NewStdioServer(s)
	if err := stdio.Listen(context.Background(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mcptest: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// NewToolServer builds an MCP server exposing the named tools.
func NewToolServer(name string, tools ...string) *server.MCPServer {
	s := server.NewMCPServer(name, "0.0.1", server.WithToolCapabilities(false))
	for _, toolName := range tools {
		tool := mcp.NewTool(toolName,
			mcp.WithDescription(fmt.Sprintf("Test tool %s", toolName)),
			mcp.WithString("text", mcp.Description("Text to echo back")),
		)
		s.AddTool(tool, echoHandler(toolName))
	}
	return s
}

// EchoText is the text a helper tool returns for the given input.
func EchoText(tool, text string) string {
	return tool + ":" + text
}

func echoHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, _ := req.GetArguments()["text"].(string)
		if strings.HasPrefix(toolName, "fail") {
			return mcp.NewToolResultError("tool failed: " + text), nil
		}
		return mcp.NewToolResultText(EchoText(toolName, text)), nil
	}
}
