package aggregator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"speakmcp/pkg/logging"
)

var (
	ErrToolNameRequired = errors.New("tool name is required")
	ErrToolExists       = errors.New("tool already registered")
)

// Registry maps globally unique tool names to their descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registryEntry
	seq   uint64
}

type registryEntry struct {
	desc ToolDescriptor
	seq  uint64
}

// MergeResult reports what MergeServer did with each offered tool.
type MergeResult struct {
	Added   []string
	Skipped []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registryEntry)}
}

// Register adds a single tool. It fails if the name is already taken.
func (r *Registry) Register(desc ToolDescriptor) error {
	if desc.Name == "" {
		return ErrToolNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[desc.Name]; ok {
		return fmt.Errorf("%s (owned by %s): %w", desc.Name, existing.desc.Owner, ErrToolExists)
	}
	r.insertLocked(desc)
	return nil
}

// MergeServer adds all tools of one server in a single step. Tools whose
// name is already registered, by a built-in or another server, are skipped
// and logged.
func (r *Registry) MergeServer(owner string, tools []ToolDescriptor) MergeResult {
	var res MergeResult

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, desc := range tools {
		desc.Owner = owner
		desc.Local = false
		if desc.Name == "" {
			res.Skipped = append(res.Skipped, desc.Name)
			continue
		}
		if existing, ok := r.tools[desc.Name]; ok {
			logging.Warn("Aggregator", "Tool %s from %s skipped, name already provided by %s", desc.Name, owner, existing.desc.Owner)
			res.Skipped = append(res.Skipped, desc.Name)
			continue
		}
		r.insertLocked(desc)
		res.Added = append(res.Added, desc.Name)
	}
	return res
}

func (r *Registry) insertLocked(desc ToolDescriptor) {
	r.seq++
	r.tools[desc.Name] = registryEntry{desc: desc, seq: r.seq}
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.desc, ok
}

// List returns a snapshot of all tools in registration order.
func (r *Registry) List() []ToolDescriptor {
	r.mu.RLock()
	entries := make([]registryEntry, 0, len(r.tools))
	for _, entry := range r.tools {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]ToolDescriptor, len(entries))
	for i, entry := range entries {
		out[i] = entry.desc
	}
	return out
}

// RemoveOwner drops every tool the server owner contributed and returns how
// many were removed. Built-ins are never removed.
func (r *Registry) RemoveOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name, entry := range r.tools {
		if !entry.desc.Local && entry.desc.Owner == owner {
			delete(r.tools, name)
			n++
		}
	}
	return n
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]registryEntry)
}
