package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"speakmcp/pkg/logging"
)

const subsystem = "Coordinator"

// State is the shutdown state of a Coordinator. It only ever moves forward.
type State int32

const (
	StateIdle State = iota
	StateInProgress
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in-progress"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// CleanupTask is a named obligation run during graceful shutdown. Tasks run
// one at a time in ascending Priority order.
type CleanupTask struct {
	Name     string
	Priority int
	Cleanup  func(ctx context.Context) error
}

// Options configures a Coordinator. Zero values fall back to the defaults.
type Options struct {
	// ShutdownTimeout bounds GracefulShutdown when it is called with a
	// non-positive timeout.
	ShutdownTimeout time.Duration
	// ProcessGracePeriod is how long a process may take to exit after SIGTERM.
	ProcessGracePeriod time.Duration
	// ForceGracePeriod is how long a forced shutdown waits for killed
	// processes to be reaped.
	ForceGracePeriod time.Duration
}

const (
	DefaultShutdownTimeout    = 5 * time.Second
	DefaultProcessGracePeriod = 2 * time.Second
	DefaultForceGracePeriod   = 500 * time.Millisecond
)

// Coordinator owns every long-lived resource of the application (child
// processes, timers and cleanup tasks) and retires them on shutdown.
// Create exactly one per process.
type Coordinator struct {
	opts Options

	mu          sync.Mutex
	tasks       map[string]CleanupTask
	processes   map[string]*trackedProcess
	timers      map[uint64]*Timer
	nextTimerID uint64
	state       State
	run         *shutdownRun
	escalated   bool

	done chan struct{}
}

// shutdownRun is a single shutdown pass shared by every caller that joins it.
type shutdownRun struct {
	finished chan struct{}

	forceOnce sync.Once
	force     chan struct{}

	err error
}

func newShutdownRun() *shutdownRun {
	return &shutdownRun{
		finished: make(chan struct{}),
		force:    make(chan struct{}),
	}
}

// escalate asks an in-flight graceful pass to give up and force.
func (r *shutdownRun) escalate() {
	r.forceOnce.Do(func() { close(r.force) })
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.ProcessGracePeriod <= 0 {
		opts.ProcessGracePeriod = DefaultProcessGracePeriod
	}
	if opts.ForceGracePeriod <= 0 {
		opts.ForceGracePeriod = DefaultForceGracePeriod
	}
	return &Coordinator{
		opts:      opts,
		tasks:     make(map[string]CleanupTask),
		processes: make(map[string]*trackedProcess),
		timers:    make(map[uint64]*Timer),
		done:      make(chan struct{}),
	}
}

// RegisterCleanupTask adds a task to run on graceful shutdown.
func (c *Coordinator) RegisterCleanupTask(task CleanupTask) error {
	if task.Name == "" {
		return ErrTaskNameRequired
	}
	if task.Cleanup == nil {
		return fmt.Errorf("cleanup task %s: %w", task.Name, ErrTaskFuncRequired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("cleanup task %s: %w", task.Name, ErrShutdownStarted)
	}
	if _, exists := c.tasks[task.Name]; exists {
		return fmt.Errorf("cleanup task %s: %w", task.Name, ErrTaskExists)
	}
	c.tasks[task.Name] = task
	logging.Debug(subsystem, "Registered cleanup task %s (priority %d)", task.Name, task.Priority)
	return nil
}

// UnregisterCleanupTask removes a task. Unknown names are ignored.
func (c *Coordinator) UnregisterCleanupTask(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, name)
}

// CleanupTasks returns the registered tasks in execution order.
func (c *Coordinator) CleanupTasks() []CleanupTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedTasksLocked()
}

func (c *Coordinator) sortedTasksLocked() []CleanupTask {
	tasks := make([]CleanupTask, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].Name < tasks[j].Name
	})
	return tasks
}

// State returns the current shutdown state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsShutdownInProgress reports whether a shutdown pass is currently running.
func (c *Coordinator) IsShutdownInProgress() bool {
	return c.State() == StateInProgress
}

// Done is closed once shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// begin moves the coordinator into StateInProgress. If a run is already in
// flight it is returned with started=false; after completion run is nil.
func (c *Coordinator) begin() (run *shutdownRun, started bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateCompleted:
		return nil, false
	case StateInProgress:
		return c.run, false
	}
	c.state = StateInProgress
	c.run = newShutdownRun()
	return c.run, true
}

func (c *Coordinator) finish(run *shutdownRun) {
	c.mu.Lock()
	c.state = StateCompleted
	c.mu.Unlock()

	close(run.finished)
	close(c.done)
}

// GracefulShutdown runs cleanup tasks, cancels timers and terminates tracked
// processes. If the sequence does not finish within timeout (or ForceShutdown
// is called meanwhile) it escalates to a forced shutdown; see Escalated.
// Only an error of the forced pass is returned. Concurrent callers share one
// run.
func (c *Coordinator) GracefulShutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.opts.ShutdownTimeout
	}

	run, started := c.begin()
	if run == nil {
		return nil
	}
	if !started {
		<-run.finished
		return run.err
	}

	logging.Info(subsystem, "Starting graceful shutdown (timeout %s)", timeout)
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	graceful := make(chan struct{})
	go func() {
		defer close(graceful)
		c.runGraceful(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	escalated := false
	select {
	case <-graceful:
	case <-timer.C:
		logging.Warn(subsystem, "Graceful shutdown did not finish within %s, forcing", timeout)
		escalated = true
	case <-run.force:
		logging.Warn(subsystem, "Forced shutdown requested during graceful shutdown")
		escalated = true
	}

	if escalated {
		cancel()
		c.mu.Lock()
		c.escalated = true
		c.mu.Unlock()
		run.err = c.forcePass()
		if run.err != nil {
			logging.Error(subsystem, run.err, "Forced shutdown failed")
		}
	} else {
		logging.Info(subsystem, "Graceful shutdown completed in %s", time.Since(start).Round(time.Millisecond))
	}

	c.finish(run)
	return run.err
}

// Escalated reports whether a graceful shutdown had to be forced.
func (c *Coordinator) Escalated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escalated
}

// ForceShutdown skips cleanup tasks, cancels timers and kills every tracked
// process. During a graceful run it escalates that run instead.
func (c *Coordinator) ForceShutdown() error {
	run, started := c.begin()
	if run == nil {
		return nil
	}
	if !started {
		run.escalate()
		<-run.finished
		return run.err
	}

	logging.Warn(subsystem, "Starting forced shutdown")
	run.err = c.forcePass()
	c.finish(run)
	return run.err
}

func (c *Coordinator) runGraceful(ctx context.Context) {
	c.runCleanupTasks(ctx)
	if ctx.Err() != nil {
		return
	}
	c.cancelAllTimers()
	c.terminateProcesses(ctx)
}

func (c *Coordinator) runCleanupTasks(ctx context.Context) {
	c.mu.Lock()
	tasks := c.sortedTasksLocked()
	c.mu.Unlock()

	for _, task := range tasks {
		if ctx.Err() != nil {
			logging.Warn(subsystem, "Skipping remaining cleanup tasks, shutdown escalated")
			return
		}
		logging.Debug(subsystem, "Running cleanup task %s", task.Name)
		if err := runTask(ctx, task); err != nil {
			logging.Error(subsystem, err, "Cleanup task %s failed", task.Name)
		}
	}
}

// runTask executes a single task, converting a panic into an error.
func runTask(ctx context.Context, task CleanupTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Cleanup(ctx)
}

// forcePass is the body of a forced shutdown. Cleanup tasks are skipped.
func (c *Coordinator) forcePass() error {
	c.cancelAllTimers()
	return c.killProcesses()
}
