package mcpserver

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"speakmcp/internal/config"
	"speakmcp/internal/lifecycle"
	"speakmcp/internal/mcpserver/mcptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It's the entry point for helper
// servers started by mcptest.ServerConfig.
func TestHelperProcess(t *testing.T) {
	mcptest.MaybeRun()
}

var _ lifecycle.Process = (*Process)(nil)

func waitDone(t *testing.T, p *Process, within time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(within):
		t.Fatalf("process %d did not exit within %s", p.Pid(), within)
	}
}

func TestStartProcess_CommandNotFound(t *testing.T) {
	_, err := StartProcess("missing", config.ServerConfig{Command: "/non/existent/command"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start process for missing")
}

func TestStartProcess_UsesExecCommand(t *testing.T) {
	originalExecCommand := execCommand
	defer func() { execCommand = originalExecCommand }()

	var gotName string
	var gotArgs []string
	execCommand = func(name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return originalExecCommand("/dev/null")
	}

	_, err := StartProcess("pipe-fail-server", config.ServerConfig{Command: "some-cmd", Args: []string{"some-arg"}})
	require.Error(t, err)
	assert.Equal(t, "some-cmd", gotName)
	assert.Equal(t, []string{"some-arg"}, gotArgs)
}

func TestStartProcess_ExitCapturesStderr(t *testing.T) {
	p, err := StartProcess("broken", mcptest.ServerConfig(mcptest.ModeExit))
	require.NoError(t, err)
	defer p.closeReaders()

	waitDone(t, p, 10*time.Second)
	assert.Error(t, p.ExitErr())
	assert.Eventually(t, func() bool { return p.LastStderrLine() == mcptest.ExitMessage }, time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, p.Signal(syscall.SIGTERM), os.ErrProcessDone)
	assert.ErrorIs(t, p.Kill(), os.ErrProcessDone)
}

func TestStartProcess_KillGroup(t *testing.T) {
	p, err := StartProcess("hang", mcptest.ServerConfig(mcptest.ModeHang))
	require.NoError(t, err)
	defer p.closeReaders()

	assert.Greater(t, p.Pid(), 0)
	assert.Nil(t, p.ExitErr(), "no exit error while running")

	require.NoError(t, p.Kill())
	waitDone(t, p, 5*time.Second)
}

func TestStartProcess_PassesEnv(t *testing.T) {
	cfg := config.ServerConfig{
		Command: "sh",
		Args:    []string{"-c", `echo "$SPEAKMCP_TEST_VALUE" 1>&2`},
		Env:     map[string]string{"SPEAKMCP_TEST_VALUE": "from-config"},
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	p, err := StartProcess("env", cfg)
	require.NoError(t, err)
	defer p.closeReaders()

	waitDone(t, p, 5*time.Second)
	assert.Eventually(t, func() bool { return p.LastStderrLine() == "from-config" }, time.Second, 10*time.Millisecond)
}
