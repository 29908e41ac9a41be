package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess is a Process whose reaction to signals is scripted.
type fakeProcess struct {
	pid int

	// exitOnTerm makes the process exit when it receives SIGTERM.
	exitOnTerm bool

	mu      sync.Mutex
	signals []os.Signal
	killed  int
	done    chan struct{}
	once    sync.Once
}

func newFakeProcess(pid int, exitOnTerm bool) *fakeProcess {
	return &fakeProcess{pid: pid, exitOnTerm: exitOnTerm, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if p.exited() {
		return os.ErrProcessDone
	}
	if sig == syscall.SIGTERM && p.exitOnTerm {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed++
	p.mu.Unlock()
	if p.exited() {
		return os.ErrProcessDone
	}
	p.exit()
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) exit() { p.once.Do(func() { close(p.done) }) }

func (p *fakeProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProcess) receivedSignals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

func fastOptions() Options {
	return Options{
		ShutdownTimeout:    time.Second,
		ProcessGracePeriod: 50 * time.Millisecond,
		ForceGracePeriod:   50 * time.Millisecond,
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultShutdownTimeout, c.opts.ShutdownTimeout)
	assert.Equal(t, DefaultProcessGracePeriod, c.opts.ProcessGracePeriod)
	assert.Equal(t, DefaultForceGracePeriod, c.opts.ForceGracePeriod)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.IsShutdownInProgress())
}

func TestGracefulShutdown_RunsTasksByPriority(t *testing.T) {
	c := New(fastOptions())

	var mu sync.Mutex
	var order []int
	for _, prio := range []int{5, 1, 3} {
		prio := prio
		require.NoError(t, c.RegisterCleanupTask(CleanupTask{
			Name:     "task-" + string(rune('a'+prio)),
			Priority: prio,
			Cleanup: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, prio)
				mu.Unlock()
				return nil
			},
		}))
	}

	require.NoError(t, c.GracefulShutdown(time.Second))
	assert.Equal(t, []int{1, 3, 5}, order)
	assert.Equal(t, StateCompleted, c.State())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed after shutdown")
	}
}

func TestGracefulShutdown_FailingAndPanickingTasksDoNotStopOthers(t *testing.T) {
	c := New(fastOptions())

	var ran []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		ran = append(ran, name)
		mu.Unlock()
	}

	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "fails", Priority: 1, Cleanup: func(ctx context.Context) error {
		record("fails")
		return errors.New("disk on fire")
	}}))
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "panics", Priority: 2, Cleanup: func(ctx context.Context) error {
		record("panics")
		panic("boom")
	}}))
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "last", Priority: 3, Cleanup: func(ctx context.Context) error {
		record("last")
		return nil
	}}))

	assert.NoError(t, c.GracefulShutdown(time.Second))
	assert.Equal(t, []string{"fails", "panics", "last"}, ran)
}

func TestGracefulShutdown_SingleFlight(t *testing.T) {
	c := New(fastOptions())

	var runs int32
	release := make(chan struct{})
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "slow", Cleanup: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	}}))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.GracefulShutdown(time.Second))
		}()
	}

	require.Eventually(t, c.IsShutdownInProgress, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	// Completed is terminal: further calls return at once without rerunning.
	assert.NoError(t, c.GracefulShutdown(time.Second))
	assert.NoError(t, c.ForceShutdown())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestGracefulShutdown_TimeoutEscalates(t *testing.T) {
	c := New(fastOptions())

	var sawCancel atomic.Bool
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "hang", Cleanup: func(ctx context.Context) error {
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}}))

	proc := newFakeProcess(42, false)
	c.TrackProcess("stubborn", proc)

	start := time.Now()
	err := c.GracefulShutdown(100 * time.Millisecond)
	elapsed := time.Since(start)

	assert.NoError(t, err, "a successful forced pass is not a failure")
	assert.True(t, c.Escalated())
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, proc.killCount(), "forced pass kills the tracked process")
	assert.Eventually(t, sawCancel.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateCompleted, c.State())
}

func TestGracefulShutdown_TaskIgnoringContextStillSettles(t *testing.T) {
	c := New(fastOptions())

	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "stuck", Cleanup: func(ctx context.Context) error {
		select {}
	}}))
	proc := newFakeProcess(43, false)
	c.TrackProcess("stubborn", proc)

	result := make(chan error, 1)
	go func() { result <- c.GracefulShutdown(50 * time.Millisecond) }()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("graceful shutdown did not settle")
	}
	assert.True(t, c.Escalated())
	assert.Equal(t, 1, proc.killCount())
	assert.Eventually(t, func() bool { return len(c.TrackedProcesses()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateCompleted, c.State())
}

func TestGracefulShutdown_NotEscalatedWhenOnTime(t *testing.T) {
	c := New(fastOptions())
	require.NoError(t, c.GracefulShutdown(time.Second))
	assert.False(t, c.Escalated())
}

func TestGracefulShutdown_TerminatesProcesses(t *testing.T) {
	c := New(fastOptions())

	polite := newFakeProcess(1, true)
	stubborn := newFakeProcess(2, false)
	c.TrackProcess("polite", polite)
	c.TrackProcess("stubborn", stubborn)

	require.NoError(t, c.GracefulShutdown(time.Second))

	assert.Equal(t, []os.Signal{syscall.SIGTERM}, polite.receivedSignals())
	assert.Equal(t, 0, polite.killCount())

	assert.Equal(t, []os.Signal{syscall.SIGTERM}, stubborn.receivedSignals())
	assert.Equal(t, 1, stubborn.killCount(), "stragglers are killed after the grace period")
}

func TestGracefulShutdown_CancelsTimersBeforeProcesses(t *testing.T) {
	c := New(fastOptions())

	var fired atomic.Bool
	c.After(time.Hour, func() { fired.Store(true) })
	c.Every(time.Hour, func() { fired.Store(true) })
	require.Equal(t, 2, c.ActiveTimers())

	require.NoError(t, c.GracefulShutdown(time.Second))
	assert.Equal(t, 0, c.ActiveTimers())
	assert.False(t, fired.Load())
}

func TestForceShutdown_SkipsCleanupTasks(t *testing.T) {
	c := New(fastOptions())

	var ran atomic.Bool
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "skipped", Cleanup: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}}))
	proc := newFakeProcess(7, true)
	c.TrackProcess("child", proc)
	c.After(time.Hour, func() {})

	require.NoError(t, c.ForceShutdown())

	assert.False(t, ran.Load())
	assert.Equal(t, 1, proc.killCount())
	assert.Empty(t, proc.receivedSignals(), "forced shutdown does not send SIGTERM")
	assert.Equal(t, 0, c.ActiveTimers())
	assert.Equal(t, StateCompleted, c.State())
}

func TestForceShutdown_EscalatesInFlightGraceful(t *testing.T) {
	c := New(fastOptions())

	started := make(chan struct{})
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "hang", Cleanup: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}}))
	proc := newFakeProcess(9, false)
	c.TrackProcess("child", proc)

	gracefulErr := make(chan error, 1)
	go func() { gracefulErr <- c.GracefulShutdown(time.Minute) }()
	<-started

	forceErr := c.ForceShutdown()

	select {
	case err := <-gracefulErr:
		assert.NoError(t, err)
		assert.NoError(t, forceErr, "both callers observe the same run")
	case <-time.After(2 * time.Second):
		t.Fatal("graceful shutdown was not escalated")
	}
	assert.Equal(t, 1, proc.killCount())
	assert.True(t, c.Escalated())
}

func TestRegisterCleanupTask_Errors(t *testing.T) {
	c := New(fastOptions())
	noop := func(ctx context.Context) error { return nil }

	assert.ErrorIs(t, c.RegisterCleanupTask(CleanupTask{Cleanup: noop}), ErrTaskNameRequired)
	assert.ErrorIs(t, c.RegisterCleanupTask(CleanupTask{Name: "nil"}), ErrTaskFuncRequired)

	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "dup", Cleanup: noop}))
	assert.ErrorIs(t, c.RegisterCleanupTask(CleanupTask{Name: "dup", Cleanup: noop}), ErrTaskExists)

	c.UnregisterCleanupTask("dup")
	assert.Empty(t, c.CleanupTasks())

	require.NoError(t, c.GracefulShutdown(time.Second))
	assert.ErrorIs(t, c.RegisterCleanupTask(CleanupTask{Name: "late", Cleanup: noop}), ErrShutdownStarted)
}

func TestCleanupTasks_TiesOrderedByName(t *testing.T) {
	c := New(fastOptions())
	noop := func(ctx context.Context) error { return nil }
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: name, Priority: 1, Cleanup: noop}))
	}
	require.NoError(t, c.RegisterCleanupTask(CleanupTask{Name: "z", Priority: 0, Cleanup: noop}))

	var names []string
	for _, task := range c.CleanupTasks() {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"z", "a", "b", "c"}, names)
}
