package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := s.Record(ctx, Entry{
		Tool:      "create_file",
		Owner:     "local",
		Arguments: map[string]any{"path": "a.txt", "content": "hi"},
		Result:    "File created successfully: /tmp/a.txt",
		StartedAt: base,
		Duration:  15 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.Record(ctx, Entry{Tool: "search", Owner: "web", Result: "boom", IsError: true, StartedAt: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Tool: "read_file", Owner: "local", StartedAt: base.Add(2 * time.Second)})
	require.NoError(t, err)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"read_file", "search", "create_file"}, []string{all[0].Tool, all[1].Tool, all[2].Tool})

	got := all[2]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, map[string]any{"path": "a.txt", "content": "hi"}, got.Arguments)
	assert.Equal(t, base, got.StartedAt)
	assert.Equal(t, 15*time.Millisecond, got.Duration)
	assert.True(t, all[1].IsError)
	assert.Nil(t, all[0].Arguments)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecord_KeepsProvidedID(t *testing.T) {
	s := openTestStore(t)

	e, err := s.Record(context.Background(), Entry{ID: "call-1", Tool: "x", Owner: "local"})
	require.NoError(t, err)
	assert.Equal(t, "call-1", e.ID)
	assert.False(t, e.StartedAt.IsZero())
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), Entry{Tool: "x", Owner: "local"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCleanupTaskClosesStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	task := s.CleanupTask()
	assert.Equal(t, CleanupTaskName, task.Name)
	assert.Equal(t, cleanupPriority, task.Priority)
	require.NoError(t, task.Cleanup(context.Background()))

	_, err = s.Record(context.Background(), Entry{Tool: "x", Owner: "local"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
