package runtime

import (
	"time"

	loggingpkg "github.com/drblury/ethermesh/internal/runtime/logging"
)

// Observer receives service lifecycle events. All callbacks are optional and
// run synchronously, in registration order, on the goroutine that produced
// the event.
type Observer struct {
	// OnTask is called before the handler of a task runs.
	OnTask func(task *Task)
	// OnTaskEnd is called after the handler finished, before any reply is sent.
	OnTaskEnd func(result TaskResult)
	// OnListening is called after Start subscribed the controllers.
	OnListening func(controllers []ControllerInfo)
	// OnStopped is called after Stop released every subscription.
	OnStopped func(reason string)
}

// Merge combines two observers. The callbacks of other run after those of o.
func (o Observer) Merge(other Observer) Observer {
	return Observer{
		OnTask:      chain1(o.OnTask, other.OnTask),
		OnTaskEnd:   chain1(o.OnTaskEnd, other.OnTaskEnd),
		OnListening: chain1(o.OnListening, other.OnListening),
		OnStopped:   chain1(o.OnStopped, other.OnStopped),
	}
}

func chain1[T any](a, b func(T)) func(T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T) {
		a(v)
		b(v)
	}
}

func (o Observer) task(t *Task) {
	if o.OnTask != nil {
		o.OnTask(t)
	}
}

func (o Observer) taskEnd(r TaskResult) {
	if o.OnTaskEnd != nil {
		o.OnTaskEnd(r)
	}
}

func (o Observer) listening(c []ControllerInfo) {
	if o.OnListening != nil {
		o.OnListening(c)
	}
}

func (o Observer) stopped(reason string) {
	if o.OnStopped != nil {
		o.OnStopped(reason)
	}
}

// LoggingObserver logs every lifecycle event.
func LoggingObserver(logger loggingpkg.ServiceLogger) Observer {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return Observer{
		OnTask: func(t *Task) {
			logger.Debug("Task started", loggingpkg.LogFields{
				"task_id": t.ID,
				"subject": t.Subject,
				"chain":   t.Chain(),
			})
		},
		OnTaskEnd: func(r TaskResult) {
			fields := loggingpkg.LogFields{
				"task_id":     r.ID,
				"subject":     r.Subject,
				"duration_ms": r.TookMs(),
			}
			if r.Err != nil {
				logger.Error("Task failed", r.Err, fields)
				return
			}
			logger.Debug("Task completed", fields)
		},
		OnListening: func(c []ControllerInfo) {
			subjects := make([]string, len(c))
			for i, info := range c {
				subjects[i] = info.Subject
			}
			logger.Info("Listening", loggingpkg.LogFields{"subjects": subjects})
		},
		OnStopped: func(reason string) {
			logger.Info("Stopped", loggingpkg.LogFields{"reason": reason})
		},
	}
}

// MetricsObserver forwards task events to counting callbacks.
func MetricsObserver(onTask func(subject string), onEnd func(subject string, took time.Duration, err error)) Observer {
	var o Observer
	if onTask != nil {
		o.OnTask = func(t *Task) { onTask(t.Subject) }
	}
	if onEnd != nil {
		o.OnTaskEnd = func(r TaskResult) { onEnd(r.Subject, r.Took, r.Err) }
	}
	return o
}
