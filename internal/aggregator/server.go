package aggregator

import (
	"context"
	"fmt"
	"io"
	"sync"

	"speakmcp/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolSource is what the aggregated server exposes: the merged tool list and
// a way to invoke any tool in it.
type ToolSource interface {
	GetAvailableTools() []ToolDescriptor
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Server re-exposes the merged tool namespace as a single MCP server, so
// other MCP hosts can use the built-ins and every connected server at once.
type Server struct {
	source ToolSource
	server *server.MCPServer

	mu      sync.Mutex
	exposed map[string]struct{}
}

// NewServer creates an aggregated server named name.
func NewServer(name, version string, source ToolSource) *Server {
	return &Server{
		source:  source,
		server:  server.NewMCPServer(name, version, server.WithToolCapabilities(true)),
		exposed: make(map[string]struct{}),
	}
}

// Sync makes the exposed tool set match the source's current tool list.
func (s *Server) Sync() {
	tools := s.source.GetAvailableTools()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]struct{}, len(tools))
	for _, desc := range tools {
		current[desc.Name] = struct{}{}
	}

	var stale []string
	for name := range s.exposed {
		if _, ok := current[name]; !ok {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.server.DeleteTools(stale...)
	}

	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, desc := range tools {
		serverTools = append(serverTools, server.ServerTool{
			Tool:    ToMCPTool(desc),
			Handler: s.handlerFor(desc.Name),
		})
	}
	if len(serverTools) > 0 {
		s.server.AddTools(serverTools...)
	}

	s.exposed = current
	logging.Debug("Aggregator", "Exposing %d tools (%d removed)", len(current), len(stale))
}

func (s *Server) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.source.CallTool(ctx, name, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
		}
		return result, nil
	}
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.Sync()
	logging.Info("Aggregator", "Serving %d tools over stdio", len(s.exposed))
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}
