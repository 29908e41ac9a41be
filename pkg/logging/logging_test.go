package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitForCLI_WritesSubsystemAndError(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Error("Orchestrator", errors.New("boom"), "server %s failed", "files")

	out := buf.String()
	assert.Contains(t, out, "server files failed")
	assert.Contains(t, out, "subsystem=Orchestrator")
	assert.Contains(t, out, "error=boom")
}

func TestInitForCLI_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelWarn, &buf)

	Info("Coordinator", "not shown")
	Warn("Coordinator", "shown")

	assert.NotContains(t, buf.String(), "not shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitForHost_DeliversEntries(t *testing.T) {
	ch := InitForHost(LevelInfo)
	defer func() {
		CloseHostChannel()
		var buf bytes.Buffer
		InitForCLI(LevelInfo, &buf)
	}()

	Debug("LocalTools", "filtered")
	Info("LocalTools", "created %s", "notes.txt")

	select {
	case entry := <-ch:
		assert.Equal(t, LevelInfo, entry.Level)
		assert.Equal(t, "LocalTools", entry.Subsystem)
		assert.Equal(t, "created notes.txt", entry.Message)
	default:
		require.Fail(t, "expected a log entry on the host channel")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"error":   LevelError,
		"unknown": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
