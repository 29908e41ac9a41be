// Package localtools implements the built-in tools that are always
// available, whether or not any tool server is connected.
package localtools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"speakmcp/internal/aggregator"
	"speakmcp/internal/config"
	"speakmcp/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

const subsystem = "LocalTools"

// Built-in tool names.
const (
	CreateFile       = "create_file"
	ReadFile         = "read_file"
	ListFiles        = "list_files"
	SendNotification = "send_notification"
)

// maxReadBytes caps what read_file will return.
const maxReadBytes = 1 << 20

// Options configures the built-in tools.
type Options struct {
	// BaseDir is where relative paths resolve. Defaults to the user's home
	// directory.
	BaseDir string
	// Notifier delivers send_notification. Defaults to DesktopNotifier.
	Notifier Notifier
}

type handlerFunc func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

type localTool struct {
	desc    aggregator.ToolDescriptor
	handler handlerFunc
}

// Toolset holds the built-in tools.
type Toolset struct {
	baseDir  string
	notifier Notifier
	order    []string
	tools    map[string]localTool
}

// New creates the built-in toolset.
func New(opts Options) *Toolset {
	baseDir := config.ExpandPath(opts.BaseDir)
	if baseDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			baseDir = home
		} else {
			baseDir = "."
		}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = DesktopNotifier{}
	}

	ts := &Toolset{
		baseDir:  baseDir,
		notifier: notifier,
		tools:    make(map[string]localTool),
	}

	ts.add(CreateFile, "Create a file with the given content. Parent directories are created as needed.",
		objectSchema(map[string]any{
			"path":    stringProp("Path of the file to create"),
			"content": stringProp("Content to write"),
		}, "path", "content"),
		ts.createFile)
	ts.add(ReadFile, "Read the contents of a text file.",
		objectSchema(map[string]any{
			"path": stringProp("Path of the file to read"),
		}, "path"),
		ts.readFile)
	ts.add(ListFiles, "List the entries of a directory.",
		objectSchema(map[string]any{
			"path": stringProp("Directory to list"),
		}, "path"),
		ts.listFiles)
	ts.add(SendNotification, "Show a desktop notification.",
		objectSchema(map[string]any{
			"title":   stringProp("Notification title"),
			"message": stringProp("Notification body"),
		}, "title", "message"),
		ts.sendNotification)

	return ts
}

func (ts *Toolset) add(name, description string, schema map[string]any, h handlerFunc) {
	ts.order = append(ts.order, name)
	ts.tools[name] = localTool{
		desc: aggregator.ToolDescriptor{
			Name:        name,
			Description: description,
			InputSchema: schema,
			Owner:       aggregator.LocalOwner,
			Local:       true,
		},
		handler: h,
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	req := make([]any, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   req,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// BaseDir returns the directory relative paths resolve against.
func (ts *Toolset) BaseDir() string {
	return ts.baseDir
}

// Descriptors returns the built-in tool descriptors in a fixed order.
func (ts *Toolset) Descriptors() []aggregator.ToolDescriptor {
	out := make([]aggregator.ToolDescriptor, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.tools[name].desc)
	}
	return out
}

// Call runs a built-in tool. Only an unknown name is an error; failures of
// the tool itself are reported as an error result.
func (ts *Toolset) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	tool, ok := ts.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown local tool %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := tool.handler(ctx, args)
	if err != nil {
		logging.Warn(subsystem, "%s failed: %v", name, err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result, nil
}

// resolve turns a user-supplied path into an absolute one.
func (ts *Toolset) resolve(p string) string {
	p = config.ExpandPath(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(ts.baseDir, p)
	}
	return filepath.Clean(p)
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("missing required argument: %s", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	if required && strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	return s, nil
}

func (ts *Toolset) createFile(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content", false)
	if err != nil {
		return nil, err
	}

	full := ts.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", full, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", full, err)
	}

	logging.Info(subsystem, "Created %s (%d bytes)", full, len(content))
	return mcp.NewToolResultText(fmt.Sprintf("File created successfully: %s", full)), nil
}

func (ts *Toolset) readFile(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}

	full := ts.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", full, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("failed to read file %s: is a directory", full)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("failed to read file %s: larger than %d bytes", full, maxReadBytes)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", full, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (ts *Toolset) listFiles(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := stringArg(args, "path", false)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "."
	}

	full := ts.resolve(path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", full, err)
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Directory is empty: %s", full)), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return mcp.NewToolResultText(fmt.Sprintf("Files in %s:\n%s", full, strings.Join(names, "\n"))), nil
}

func (ts *Toolset) sendNotification(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	title, err := stringArg(args, "title", true)
	if err != nil {
		return nil, err
	}
	message, err := stringArg(args, "message", true)
	if err != nil {
		return nil, err
	}

	if err := ts.notifier.Notify(title, message); err != nil {
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Notification sent: %s - %s", title, message)), nil
}
