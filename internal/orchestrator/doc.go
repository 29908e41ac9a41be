// Package orchestrator manages the pool of MCP tool servers and the merged
// tool namespace the host invokes tools through.
//
// # Lifecycle
//
// Initialize spawns every enabled server concurrently, performs the MCP
// handshake and discovers its tools. Each spawned process is tracked with the
// lifecycle.Coordinator under the name "mcp-server-<id>" so that it is
// retired on shutdown even if Cleanup never runs. A server that fails to
// spawn, answer the handshake or list its tools within its timeout is
// recorded as failed; the remaining servers are unaffected.
//
// # Tool namespace
//
// The registry always contains the built-in tools of package localtools.
// Server tools are merged in server id order once discovery has settled. A
// tool whose name is already taken is skipped and logged.
//
// # Invocation
//
// ExecuteToolCall routes a call to the built-in handler or to the owning
// server. Only an unknown tool name is returned as an error; every failure
// while running a known tool comes back as a result with IsError set.
//
// Per-server states:
//
//	disabled                (terminal)
//	connecting -> connected
//	connecting -> failed
//
// Only a new Initialize re-enters connecting.
package orchestrator
