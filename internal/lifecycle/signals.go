package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"speakmcp/pkg/logging"
)

// For mocking in tests
var signalNotify = signal.Notify
var signalStop = signal.Stop

// HandleSignals starts a graceful shutdown of c on the first SIGINT/SIGTERM
// and forces it on the second. The returned function stops listening.
func HandleSignals(ctx context.Context, c *Coordinator, timeout time.Duration) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)

	quit := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		received := 0
		for {
			select {
			case sig := <-sigCh:
				received++
				if received == 1 {
					logging.Info(subsystem, "Received %s, shutting down", sig)
					go func() {
						if err := c.GracefulShutdown(timeout); err != nil {
							logging.Error(subsystem, err, "Shutdown did not complete gracefully")
						}
					}()
					continue
				}
				logging.Warn(subsystem, "Received %s again, forcing shutdown", sig)
				go func() {
					if err := c.ForceShutdown(); err != nil {
						logging.Error(subsystem, err, "Forced shutdown reported errors")
					}
				}()
				return
			case <-c.Done():
				return
			case <-ctx.Done():
				return
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signalStop(sigCh)
			close(quit)
			<-finished
		})
	}
}

// RecoverAndShutdown is meant to be deferred at the top of goroutines that
// own resources. On panic it forces a shutdown and re-panics.
func (c *Coordinator) RecoverAndShutdown() {
	if r := recover(); r != nil {
		logging.Error(subsystem, fmt.Errorf("%v", r), "Unrecovered panic, forcing shutdown")
		if err := c.ForceShutdown(); err != nil {
			logging.Error(subsystem, err, "Forced shutdown after panic reported errors")
		}
		panic(r)
	}
}
