package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"speakmcp/internal/aggregator"
	"speakmcp/internal/history"
	"speakmcp/internal/mcpserver"
	"speakmcp/internal/telemetry"
	"speakmcp/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCallRequest names a tool and its arguments.
type ToolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ExecuteToolCall invokes a tool from the merged registry. It returns an
// *UnknownToolError for names not in the registry. Any failure while running
// a known tool is returned as a result with IsError set.
func (o *Orchestrator) ExecuteToolCall(ctx context.Context, req ToolCallRequest) (*mcp.CallToolResult, error) {
	desc, ok := o.registry.Lookup(req.Name)
	if !ok {
		return nil, &UnknownToolError{Name: req.Name}
	}

	callID := uuid.New().String()
	start := time.Now()
	logging.Debug(subsystem, "Call %s: %s (owner %s)", callID, desc.Name, desc.Owner)

	var result *mcp.CallToolResult
	if desc.IsLocal() {
		result = o.callLocal(ctx, desc, req.Arguments)
	} else {
		result = o.callRemote(ctx, desc, req.Arguments)
	}

	o.finishCall(ctx, callID, desc, req.Arguments, start, result)
	return result, nil
}

// CallTool lets the orchestrator serve as an aggregator.ToolSource.
func (o *Orchestrator) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return o.ExecuteToolCall(ctx, ToolCallRequest{Name: name, Arguments: args})
}

var _ aggregator.ToolSource = (*Orchestrator)(nil)

func (o *Orchestrator) callLocal(ctx context.Context, desc aggregator.ToolDescriptor, args map[string]any) *mcp.CallToolResult {
	result, err := o.local.Call(ctx, desc.Name, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: %v", desc.Name, err))
	}
	return result
}

func (o *Orchestrator) callRemote(ctx context.Context, desc aggregator.ToolDescriptor, args map[string]any) *mcp.CallToolResult {
	o.mu.RLock()
	var client mcpserver.Client
	if conn, ok := o.servers[desc.Owner]; ok {
		client = conn.client()
	}
	o.mu.RUnlock()

	if client == nil {
		err := fmt.Errorf("%w: %s", ErrServerNotConnected, desc.Owner)
		logging.Warn(subsystem, "Call to %s: %v", desc.Name, err)
		return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: %v", desc.Name, err))
	}

	result, err := client.CallTool(ctx, desc.Name, args)
	if err != nil {
		logging.Error(subsystem, err, "Tool %s on server %s failed", desc.Name, desc.Owner)
		return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: %v", desc.Name, err))
	}
	if result == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: empty response from server %s", desc.Name, desc.Owner))
	}
	return result
}

// finishCall reports a finished call to the observer and recorder.
func (o *Orchestrator) finishCall(ctx context.Context, callID string, desc aggregator.ToolDescriptor, args map[string]any, start time.Time, result *mcp.CallToolResult) {
	duration := time.Since(start)
	text := resultText(result)

	if o.observer != nil {
		obs := telemetry.ToolCallObservation{
			CallID:   callID,
			ToolName: desc.Name,
			Owner:    desc.Owner,
			Start:    start,
			Duration: duration,
			Success:  !result.IsError,
		}
		if result.IsError {
			obs.Error = text
		}
		o.observer.ObserveToolCall(ctx, obs)
	}

	if o.recorder != nil {
		_, err := o.recorder.Record(context.WithoutCancel(ctx), history.Entry{
			ID:        callID,
			Tool:      desc.Name,
			Owner:     desc.Owner,
			Arguments: args,
			Result:    text,
			IsError:   result.IsError,
			StartedAt: start,
			Duration:  duration,
		})
		if err != nil {
			logging.Warn(subsystem, "Failed to record call %s: %v", callID, err)
		}
	}
}

// resultText joins the text content of a result.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
