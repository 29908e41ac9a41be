package mcpserver

import (
	"context"
	"time"

	"speakmcp/internal/config"
)

// Dialer launches a tool server and returns an unconnected Client for it.
type Dialer interface {
	Dial(ctx context.Context, id string, cfg config.ServerConfig) (Client, error)
}

// StdioDialer spawns servers as child processes speaking MCP over stdio.
type StdioDialer struct {
	// CloseGracePeriod is how long Close waits for the server to exit on
	// its own before killing it.
	CloseGracePeriod time.Duration
}

var _ Dialer = StdioDialer{}

// Dial implements Dialer.
func (d StdioDialer) Dial(ctx context.Context, id string, cfg config.ServerConfig) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	proc, err := StartProcess(id, cfg)
	if err != nil {
		return nil, err
	}
	return NewStdioClient(id, proc, d.CloseGracePeriod), nil
}
