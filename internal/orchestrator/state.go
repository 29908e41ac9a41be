package orchestrator

import (
	"speakmcp/internal/config"
	"speakmcp/internal/mcpserver"
)

// Status values reported by GetServerStatus.
const (
	StatusConnecting = "connecting"
	StatusConnected  = "connected"
	StatusFailed     = "failed"
	StatusDisabled   = "disabled"
)

// ServerStatus is the externally visible state of one configured server.
type ServerStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ToolCount int    `json:"toolCount"`
}

// Connected reports whether the server is usable.
func (s ServerStatus) Connected() bool {
	return s.Status == StatusConnected
}

// serverState is one of stateConnecting, stateConnected, stateFailed or
// stateDisabled.
type serverState interface {
	status() ServerStatus
}

type stateConnecting struct{}

func (stateConnecting) status() ServerStatus {
	return ServerStatus{Status: StatusConnecting}
}

type stateConnected struct {
	client mcpserver.Client
	// tools lists the names this server actually contributed.
	tools []string
}

func (s stateConnected) status() ServerStatus {
	return ServerStatus{Status: StatusConnected, ToolCount: len(s.tools)}
}

type stateFailed struct {
	err error
}

func (s stateFailed) status() ServerStatus {
	return ServerStatus{Status: StatusFailed, Error: s.err.Error()}
}

type stateDisabled struct{}

func (stateDisabled) status() ServerStatus {
	return ServerStatus{Status: StatusDisabled}
}

// serverConn is the orchestrator's record of one configured server.
type serverConn struct {
	id     string
	config config.ServerConfig
	state  serverState
}

func (c *serverConn) client() mcpserver.Client {
	if connected, ok := c.state.(stateConnected); ok {
		return connected.client
	}
	return nil
}

// processName is the name a server's process is tracked under.
func processName(id string) string {
	return "mcp-server-" + id
}
