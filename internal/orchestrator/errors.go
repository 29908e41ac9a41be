package orchestrator

import (
	"errors"
	"fmt"
)

// ErrServerNotConnected is reported when a tool's owning server has no live
// connection.
var ErrServerNotConnected = errors.New("server is not connected")

// UnknownToolError is returned by ExecuteToolCall for a name that is not in
// the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// IsUnknownTool reports whether err is an *UnknownToolError.
func IsUnknownTool(err error) bool {
	var target *UnknownToolError
	return errors.As(err, &target)
}
