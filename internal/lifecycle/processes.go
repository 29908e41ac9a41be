package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"speakmcp/pkg/logging"
)

// Process is a running child process the Coordinator can terminate.
// Done must be closed once the process has exited.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	Done() <-chan struct{}
}

// TrackedProcess describes a process currently tracked by the Coordinator.
type TrackedProcess struct {
	Name string
	Pid  int
}

type trackedProcess struct {
	name string
	proc Process
}

// TrackProcess registers p under name. The entry removes itself when the
// process exits. Tracking a new process under an existing name replaces the
// old entry. Processes tracked after shutdown completed are killed at once.
func (c *Coordinator) TrackProcess(name string, p Process) {
	entry := &trackedProcess{name: name, proc: p}

	c.mu.Lock()
	if c.state == StateCompleted {
		c.mu.Unlock()
		logging.Warn(subsystem, "Process %s (PID %d) started after shutdown, killing it", name, p.Pid())
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logging.Error(subsystem, err, "Failed to kill late process %s", name)
		}
		return
	}
	c.processes[name] = entry
	c.mu.Unlock()

	logging.Debug(subsystem, "Tracking process %s (PID %d)", name, p.Pid())

	go func() {
		<-p.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.processes[name]; ok && cur == entry {
			delete(c.processes, name)
		}
	}()
}

// UntrackProcess forgets a process without signalling it.
func (c *Coordinator) UntrackProcess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.processes, name)
}

// TrackedProcesses returns the tracked processes sorted by name.
func (c *Coordinator) TrackedProcesses() []TrackedProcess {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]TrackedProcess, 0, len(c.processes))
	for name, entry := range c.processes {
		out = append(out, TrackedProcess{Name: name, Pid: entry.proc.Pid()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Coordinator) snapshotProcesses() []*trackedProcess {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*trackedProcess, 0, len(c.processes))
	for _, entry := range c.processes {
		out = append(out, entry)
	}
	return out
}

// terminateProcesses sends SIGTERM to every tracked process in parallel and
// kills whatever is still running after the grace period.
func (c *Coordinator) terminateProcesses(ctx context.Context) {
	procs := c.snapshotProcesses()
	if len(procs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, entry := range procs {
		wg.Add(1)
		go func(entry *trackedProcess) {
			defer wg.Done()
			c.terminateOne(ctx, entry)
		}(entry)
	}
	wg.Wait()
}

func (c *Coordinator) terminateOne(ctx context.Context, entry *trackedProcess) {
	p := entry.proc
	select {
	case <-p.Done():
		return
	default:
	}

	logging.Debug(subsystem, "Sending SIGTERM to %s (PID %d)", entry.name, p.Pid())
	if err := p.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return
		}
		logging.Warn(subsystem, "SIGTERM to %s failed (%v), killing", entry.name, err)
		_ = c.killOne(entry)
		return
	}

	timer := time.NewTimer(c.opts.ProcessGracePeriod)
	defer timer.Stop()

	select {
	case <-p.Done():
		logging.Debug(subsystem, "Process %s exited", entry.name)
	case <-timer.C:
		logging.Warn(subsystem, "Process %s (PID %d) did not exit within %s, killing", entry.name, p.Pid(), c.opts.ProcessGracePeriod)
		_ = c.killOne(entry)
	case <-ctx.Done():
		// The forced pass takes over.
	}
}

func (c *Coordinator) killOne(entry *trackedProcess) error {
	err := entry.proc.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		logging.Error(subsystem, err, "Failed to kill %s (PID %d)", entry.name, entry.proc.Pid())
		return fmt.Errorf("kill %s: %w", entry.name, err)
	}
	return nil
}

// killProcesses hard-kills every tracked process and waits at most
// ForceGracePeriod for them to be reaped.
func (c *Coordinator) killProcesses() error {
	procs := c.snapshotProcesses()
	if len(procs) == 0 {
		return nil
	}

	var errs []error
	for _, entry := range procs {
		if err := c.killOne(entry); err != nil {
			errs = append(errs, err)
		}
	}

	deadline := time.NewTimer(c.opts.ForceGracePeriod)
	defer deadline.Stop()
	for _, entry := range procs {
		select {
		case <-entry.proc.Done():
		case <-deadline.C:
			logging.Warn(subsystem, "Gave up waiting for killed processes after %s", c.opts.ForceGracePeriod)
			return errors.Join(errs...)
		}
	}
	return errors.Join(errs...)
}
