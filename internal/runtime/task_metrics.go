package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// TaskMetrics exports task and sink statistics to Prometheus.
type TaskMetrics struct {
	mu sync.Mutex

	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	sinkReplies  *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// NewTaskMetrics creates the collectors. They are not registered until
// Register is called.
func NewTaskMetrics(registerer prometheus.Registerer) *TaskMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &TaskMetrics{
		registerer: registerer,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ethermesh",
			Name:      "tasks_total",
			Help:      "Total number of dispatched tasks by subject and outcome",
		}, []string{"subject", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ethermesh",
			Name:      "task_duration_seconds",
			Help:      "Handler latency per subject",
			Buckets:   prometheus.DefBuckets,
		}, []string{"subject"}),
		sinkReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ethermesh",
			Name:      "sink_replies_total",
			Help:      "Replies collected by sink calls by outcome",
		}, []string{"outcome"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *TaskMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range []prometheus.Collector{m.tasksTotal, m.taskDuration, m.sinkReplies} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordTask records a finished task.
func (m *TaskMetrics) RecordTask(subject string, took time.Duration, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	m.tasksTotal.WithLabelValues(subject, outcome).Inc()
	m.taskDuration.WithLabelValues(subject).Observe(took.Seconds())
}

// RecordSinkReply records one reply collected by a sink.
func (m *TaskMetrics) RecordSinkReply(outcome string) {
	m.sinkReplies.WithLabelValues(outcome).Inc()
}
