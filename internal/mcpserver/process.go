package mcpserver

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"speakmcp/internal/config"
	"speakmcp/pkg/logging"
)

// For mocking in tests
var execCommand = exec.Command

const stderrDrainTimeout = 200 * time.Millisecond

// Process is a spawned MCP server child process with its stdio attached.
// It satisfies lifecycle.Process.
type Process struct {
	id  string
	cmd *exec.Cmd

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	done       chan struct{}
	stderrDone chan struct{}
	waitErr    error

	mu         sync.Mutex
	lastStderr string
}

// StartProcess launches the server described by cfg in its own process
// group. The child's stderr is forwarded to the log under "MCPServer-<id>".
func StartProcess(id string, cfg config.ServerConfig) (*Process, error) {
	cmd := execCommand(cfg.Command, cfg.Args...)
	setProcessGroup(cmd)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	pipe := func() (r, w *os.File, err error) {
		r, w, err = os.Pipe()
		if err == nil {
			opened = append(opened, r, w)
		}
		return r, w, err
	}

	stdinR, stdinW, err := pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for %s: %w", id, err)
	}
	stdoutR, stdoutW, err := pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stdout pipe for %s: %w", id, err)
	}
	stderrR, stderrW, err := pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stderr pipe for %s: %w", id, err)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to start process for %s (%s %v): %w", id, cfg.Command, cfg.Args, err)
	}

	// The child owns its ends now.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		id:         id,
		cmd:        cmd,
		stdin:      stdinW,
		stdout:     stdoutR,
		stderr:     stderrR,
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}

	go p.forwardStderr()
	go func() {
		p.waitErr = cmd.Wait()
		// Let the forwarder catch the last lines so LastStderrLine is
		// current once Done is closed. Grandchildren may hold the pipe open.
		select {
		case <-p.stderrDone:
		case <-time.After(stderrDrainTimeout):
		}
		if p.waitErr != nil {
			logging.Debug(p.subsystem(), "Process (PID %d) exited: %v", cmd.Process.Pid, p.waitErr)
		} else {
			logging.Debug(p.subsystem(), "Process (PID %d) exited", cmd.Process.Pid)
		}
		close(p.done)
	}()

	logging.Debug(p.subsystem(), "Started %s %v (PID %d)", cfg.Command, cfg.Args, cmd.Process.Pid)
	return p, nil
}

func (p *Process) subsystem() string {
	return "MCPServer-" + p.id
}

func (p *Process) forwardStderr() {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		p.lastStderr = line
		p.mu.Unlock()
		logging.Debug(p.subsystem(), "%s", line)
	}
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Signal delivers sig to the child's whole process group.
func (p *Process) Signal(sig os.Signal) error {
	if p.exited() {
		return os.ErrProcessDone
	}
	return signalGroup(p.cmd.Process, sig)
}

// Kill hard-kills the child's process group.
func (p *Process) Kill() error {
	if p.exited() {
		return os.ErrProcessDone
	}
	return killGroup(p.cmd.Process)
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the result of waiting on the child. Only meaningful after
// Done is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// LastStderrLine returns the most recent line the child wrote to stderr.
func (p *Process) LastStderrLine() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStderr
}

// Stdin is the write end of the child's standard input.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the read end of the child's standard output.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// closeReaders releases the parent's read ends once the child is gone.
func (p *Process) closeReaders() {
	p.stdout.Close()
	p.stderr.Close()
}
