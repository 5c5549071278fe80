package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/ethermesh/internal/runtime/errors"
	loggingpkg "github.com/drblury/ethermesh/internal/runtime/logging"
)

// ExitHandler coordinates process shutdown. Construct one at process start,
// pass it to the service through ServiceDependencies and call Install once.
type ExitHandler struct {
	// Cleanup runs once, before OnStop.
	Cleanup func()
	// OnStop receives the event that stopped the process: a signal name or
	// the reason passed to Service.Stop.
	OnStop func(event string)
	// OnDead receives fatal failures caught by Guard.
	OnDead func(err error)
	// Exit terminates the process after a signal or a fatal failure.
	// Defaults to os.Exit.
	Exit func(code int)
	// Logger defaults to a no-op logger.
	Logger loggingpkg.ServiceLogger

	stopped   atomic.Bool
	installMu sync.Mutex
	installed bool
}

// PanicError is what OnDead receives for a recovered panic.
type PanicError struct {
	Value     any
	Stack     string
	StackHash string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (h *ExitHandler) logger() loggingpkg.ServiceLogger {
	if h.Logger == nil {
		return loggingpkg.NewNopLogger()
	}
	return h.Logger
}

func (h *ExitHandler) exit(code int) {
	if h.Exit != nil {
		h.Exit(code)
		return
	}
	os.Exit(code)
}

// Install hooks the shutdown signals. The first signal runs Stop and exits
// the process. Later calls are no-ops. Cancelling ctx releases the hooks.
func (h *ExitHandler) Install(ctx context.Context) {
	h.installMu.Lock()
	defer h.installMu.Unlock()
	if h.installed {
		return
	}
	h.installed = true

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, shutdownSignals...)

	go func() {
		defer signal.Stop(signals)
		select {
		case sig := <-signals:
			h.logger().Info("Received signal", loggingpkg.LogFields{"signal": sig.String()})
			h.Stop(sig.String())
			h.exit(0)
		case <-ctx.Done():
		}
	}()
}

// Stop runs Cleanup and then OnStop with event. Only the first call has an
// effect, so Cleanup may itself stop the service.
func (h *ExitHandler) Stop(event string) {
	if !h.stopped.CompareAndSwap(false, true) {
		return
	}
	if h.Cleanup != nil {
		h.Cleanup()
	}
	if h.OnStop != nil {
		h.OnStop(event)
		return
	}
	h.logger().Info("Application stopped", loggingpkg.LogFields{"event": event})
}

// Stopped reports whether Stop already ran.
func (h *ExitHandler) Stopped() bool {
	return h.stopped.Load()
}

// Guard runs fn. A panic in fn stops the process: Stop runs, OnDead receives
// a *PanicError and the process exits with status 1.
func (h *ExitHandler) Guard(fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := string(debug.Stack())
		perr := &PanicError{Value: r, Stack: stack}
		perr.StackHash = errspkg.StackHash("panic", fmt.Sprint(r), &stack)

		h.Stop("panic")
		if h.OnDead != nil {
			h.OnDead(perr)
		} else {
			h.logger().Error("Application died", perr, loggingpkg.LogFields{"stack_hash": perr.StackHash})
		}
		h.exit(1)
	}()
	fn()
}
