package aggregator

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// LocalOwner is the owner recorded for built-in tools.
const LocalOwner = "local"

// ToolDescriptor describes one tool in the merged namespace.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	// Owner is LocalOwner for built-ins, otherwise the id of the server that
	// advertised the tool. A server may be configured under the id "local",
	// so routing goes by Local, not by Owner.
	Owner string `json:"owner"`
	Local bool   `json:"-"`
}

// IsLocal reports whether the tool is a built-in.
func (d ToolDescriptor) IsLocal() bool {
	return d.Local
}

// FromMCPTool converts a tool advertised by a server into a descriptor
// owned by that server.
func FromMCPTool(owner string, tool mcp.Tool) (ToolDescriptor, error) {
	desc := ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		Owner:       owner,
	}

	// mcp.Tool serializes either its raw or its structured schema, so going
	// through JSON covers both.
	data, err := json.Marshal(tool)
	if err != nil {
		return ToolDescriptor{}, fmt.Errorf("failed to encode tool %s: %w", tool.Name, err)
	}
	var wire struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return ToolDescriptor{}, fmt.Errorf("failed to decode schema of tool %s: %w", tool.Name, err)
	}
	desc.InputSchema = wire.InputSchema
	return desc, nil
}

// ToMCPTool converts a descriptor back into an mcp.Tool, e.g. to re-expose
// it from the aggregated server.
func ToMCPTool(desc ToolDescriptor) mcp.Tool {
	schema := desc.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = []byte(`{"type":"object"}`)
	}
	return mcp.NewToolWithRawSchema(desc.Name, desc.Description, raw)
}
