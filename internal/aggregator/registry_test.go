package aggregator

import (
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(descs []ToolDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(ToolDescriptor{Name: "create_file", Owner: LocalOwner, Local: true}))
	assert.ErrorIs(t, r.Register(ToolDescriptor{Name: "create_file", Owner: LocalOwner}), ErrToolExists)
	assert.ErrorIs(t, r.Register(ToolDescriptor{Owner: LocalOwner}), ErrToolNameRequired)

	desc, ok := r.Lookup("create_file")
	require.True(t, ok)
	assert.True(t, desc.IsLocal())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_MergeServerSkipsCollisions(t *testing.T) {
	tests := []struct {
		name        string
		local       []string
		servers     [][2]interface{} // owner, tool names
		wantList    []string
		wantOwners  map[string]string
		wantSkipped map[string][]string
	}{
		{
			name:     "no conflicts",
			local:    []string{"read_file"},
			servers:  [][2]interface{}{{"a", []string{"search"}}, {"b", []string{"analyze"}}},
			wantList: []string{"read_file", "search", "analyze"},
			wantOwners: map[string]string{
				"read_file": LocalOwner, "search": "a", "analyze": "b",
			},
			wantSkipped: map[string][]string{"a": nil, "b": nil},
		},
		{
			name:     "server cannot shadow a built-in",
			local:    []string{"read_file"},
			servers:  [][2]interface{}{{"files", []string{"read_file", "write_file"}}},
			wantList: []string{"read_file", "write_file"},
			wantOwners: map[string]string{
				"read_file": LocalOwner, "write_file": "files",
			},
			wantSkipped: map[string][]string{"files": {"read_file"}},
		},
		{
			name:     "first server keeps a shared name",
			servers:  [][2]interface{}{{"a", []string{"search"}}, {"b", []string{"search", "other"}}},
			wantList: []string{"search", "other"},
			wantOwners: map[string]string{
				"search": "a", "other": "b",
			},
			wantSkipped: map[string][]string{"a": nil, "b": {"search"}},
		},
		{
			name:        "duplicate within one server",
			servers:     [][2]interface{}{{"a", []string{"x", "x"}}},
			wantList:    []string{"x"},
			wantOwners:  map[string]string{"x": "a"},
			wantSkipped: map[string][]string{"a": {"x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, name := range tt.local {
				require.NoError(t, r.Register(ToolDescriptor{Name: name, Owner: LocalOwner, Local: true}))
			}
			for _, srv := range tt.servers {
				owner := srv[0].(string)
				var descs []ToolDescriptor
				for _, name := range srv[1].([]string) {
					descs = append(descs, ToolDescriptor{Name: name})
				}
				res := r.MergeServer(owner, descs)
				assert.Equal(t, tt.wantSkipped[owner], res.Skipped, "skipped for %s", owner)
			}

			assert.Equal(t, tt.wantList, names(r.List()))
			for name, owner := range tt.wantOwners {
				desc, ok := r.Lookup(name)
				require.True(t, ok, name)
				assert.Equal(t, owner, desc.Owner, name)
			}
		})
	}
}

func TestRegistry_RemoveOwnerAndClear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDescriptor{Name: "local_tool", Owner: LocalOwner, Local: true}))
	r.MergeServer("a", []ToolDescriptor{{Name: "one"}, {Name: "two"}})
	r.MergeServer("b", []ToolDescriptor{{Name: "three"}})

	assert.Equal(t, 2, r.RemoveOwner("a"))
	assert.Equal(t, 0, r.RemoveOwner("a"))
	assert.Equal(t, []string{"local_tool", "three"}, names(r.List()))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.List())
}

func TestRegistry_ServerNamedLocalIsNotBuiltIn(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDescriptor{Name: "read_file", Owner: LocalOwner, Local: true}))

	res := r.MergeServer(LocalOwner, []ToolDescriptor{{Name: "remote_echo", Local: true}})
	assert.Equal(t, []string{"remote_echo"}, res.Added)

	desc, ok := r.Lookup("remote_echo")
	require.True(t, ok)
	assert.Equal(t, LocalOwner, desc.Owner)
	assert.False(t, desc.IsLocal(), "server tools are never built-ins")

	assert.Equal(t, 1, r.RemoveOwner(LocalOwner))
	builtin, ok := r.Lookup("read_file")
	require.True(t, ok, "built-ins survive removal of a server with the same id")
	assert.True(t, builtin.IsLocal())
}

func TestRegistry_ConcurrentMergeKeepsNamesUnique(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := string(rune('a' + i))
			r.MergeServer(owner, []ToolDescriptor{{Name: "shared"}, {Name: "own-" + owner}})
			_ = r.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 9, r.Len())
	seen := map[string]bool{}
	for _, d := range r.List() {
		assert.False(t, seen[d.Name], "duplicate %s", d.Name)
		seen[d.Name] = true
	}
}

func TestFromMCPTool(t *testing.T) {
	tool := mcp.NewTool("search",
		mcp.WithDescription("Search the web"),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to search for")),
	)

	desc, err := FromMCPTool("web", tool)
	require.NoError(t, err)

	assert.Equal(t, "search", desc.Name)
	assert.Equal(t, "Search the web", desc.Description)
	assert.Equal(t, "web", desc.Owner)
	assert.Equal(t, "object", desc.InputSchema["type"])
	props, ok := desc.InputSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Equal(t, []any{"query"}, desc.InputSchema["required"])
}

func TestFromMCPTool_RawSchema(t *testing.T) {
	tool := mcp.NewToolWithRawSchema("raw", "Raw schema tool", []byte(`{"type":"object","properties":{"n":{"type":"number"}}}`))

	desc, err := FromMCPTool("srv", tool)
	require.NoError(t, err)
	props := desc.InputSchema["properties"].(map[string]any)
	assert.Contains(t, props, "n")
}

func TestToMCPTool_RoundTripsSchema(t *testing.T) {
	desc := ToolDescriptor{
		Name:        "create_file",
		Description: "Create a file",
		InputSchema: map[string]any{"type": "object", "required": []any{"path"}},
		Owner:       LocalOwner,
	}

	back, err := FromMCPTool(LocalOwner, ToMCPTool(desc))
	require.NoError(t, err)
	assert.Equal(t, desc, back)

	empty, err := FromMCPTool("x", ToMCPTool(ToolDescriptor{Name: "bare"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object"}, empty.InputSchema)
}
