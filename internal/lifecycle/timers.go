package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"speakmcp/pkg/logging"
)

// Timer is a handle to a one-shot or repeating callback owned by the
// Coordinator. All live timers are cancelled during shutdown.
type Timer struct {
	id       uint64
	c        *Coordinator
	stopOnce sync.Once
	stopFn   func()
}

// Stop cancels the timer. It is safe to call more than once and after the
// timer has fired.
func (t *Timer) Stop() {
	if t == nil || t.c == nil {
		return
	}
	t.c.releaseTimer(t.id)
	t.halt()
}

func (t *Timer) halt() {
	t.stopOnce.Do(func() {
		if t.stopFn != nil {
			t.stopFn()
		}
	})
}

// After runs fn once after d. Timers requested once shutdown has started
// never fire.
func (c *Coordinator) After(d time.Duration, fn func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		logging.Debug(subsystem, "Ignoring timer requested during shutdown")
		return &Timer{}
	}

	c.nextTimerID++
	t := &Timer{id: c.nextTimerID, c: c}
	at := time.AfterFunc(d, func() {
		if !c.releaseTimer(t.id) {
			return
		}
		safeCall(fn)
	})
	t.stopFn = func() { at.Stop() }
	c.timers[t.id] = t
	return t
}

// Every runs fn every d until the timer is stopped or shutdown starts.
func (c *Coordinator) Every(d time.Duration, fn func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		logging.Debug(subsystem, "Ignoring interval requested during shutdown")
		return &Timer{}
	}

	c.nextTimerID++
	t := &Timer{id: c.nextTimerID, c: c}
	stop := make(chan struct{})
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				safeCall(fn)
			case <-stop:
				return
			}
		}
	}()
	t.stopFn = func() { close(stop) }
	c.timers[t.id] = t
	return t
}

// ActiveTimers returns how many timers are still live.
func (c *Coordinator) ActiveTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// releaseTimer removes a timer from the live set and reports whether it was
// still there.
func (c *Coordinator) releaseTimer(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timers[id]; !ok {
		return false
	}
	delete(c.timers, id)
	return true
}

func (c *Coordinator) cancelAllTimers() {
	c.mu.Lock()
	timers := make([]*Timer, 0, len(c.timers))
	for id, t := range c.timers {
		timers = append(timers, t)
		delete(c.timers, id)
	}
	c.mu.Unlock()

	for _, t := range timers {
		t.halt()
	}
	if len(timers) > 0 {
		logging.Debug(subsystem, "Cancelled %d timer(s)", len(timers))
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(subsystem, fmt.Errorf("%v", r), "Timer callback panicked")
		}
	}()
	fn()
}
