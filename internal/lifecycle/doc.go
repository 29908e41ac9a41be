// Package lifecycle coordinates the retirement of long-lived resources.
//
// A single Coordinator is created at startup. Components register
// CleanupTasks with it, hand it the child processes they spawn and schedule
// their timers through it. On quit, an OS signal or a crash the Coordinator
// shuts everything down:
//
//	Graceful: cleanup tasks (ascending priority) -> cancel timers ->
//	          SIGTERM processes -> SIGKILL stragglers after the grace period
//	Forced:   cancel timers -> SIGKILL processes
//
// A graceful shutdown that exceeds its timeout escalates to a forced one.
// Shutdown state only moves forward (idle, in-progress, completed), and once
// completed every further shutdown call returns immediately.
package lifecycle
