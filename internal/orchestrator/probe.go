package orchestrator

import (
	"context"
	"fmt"

	"speakmcp/internal/config"
	"speakmcp/pkg/logging"
)

// TestResult is the outcome of TestServerConnection.
type TestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TestServerConnection validates cfg and then launches it in isolation to
// check that it can be started. The live pool and registry are not touched.
func (o *Orchestrator) TestServerConnection(ctx context.Context, id string, cfg config.ServerConfig) TestResult {
	if err := cfg.Validate(); err != nil {
		return TestResult{Success: false, Error: err.Error()}
	}

	timeout := cfg.EffectiveTimeout(o.defaultTimeout)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probeID := "probe-" + id
	client, err := o.dialer.Dial(cctx, probeID, cfg)
	if err != nil {
		logging.Info(subsystem, "Connection test for %s failed: %v", id, err)
		return TestResult{Success: false, Error: fmt.Sprintf("Failed to start server: %v", err)}
	}
	o.track(probeID, client)
	o.closeClient(probeID, client)

	logging.Info(subsystem, "Connection test for %s succeeded", id)
	return TestResult{Success: true}
}
