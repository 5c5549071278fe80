package runtime

import (
	"sync"
	"time"
)

// MetricsSnapshot is the published view of one completed metrics interval.
type MetricsSnapshot struct {
	TrafficPerInterval int64         `json:"trafficPerInterval"`
	AverageLatency     time.Duration `json:"-"`
	MaxLatency         time.Duration `json:"-"`
}

// AverageLatencyMs is the average latency rounded up to whole milliseconds.
func (m MetricsSnapshot) AverageLatencyMs() int64 { return ceilMs(m.AverageLatency) }

// MaxLatencyMs is the max latency rounded up to whole milliseconds.
func (m MetricsSnapshot) MaxLatencyMs() int64 { return ceilMs(m.MaxLatency) }

func ceilMs(d time.Duration) int64 {
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

// metricsWindow accumulates live counters and publishes them once per
// interval. Readers only ever see published values.
type metricsWindow struct {
	mu sync.Mutex

	liveTraffic      int64
	liveTotalLatency time.Duration
	liveMaxLatency   time.Duration

	published MetricsSnapshot
}

func (w *metricsWindow) record(took time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.liveTraffic++
	w.liveTotalLatency += took
	if took > w.liveMaxLatency {
		w.liveMaxLatency = took
	}
}

// rotate publishes the live counters and resets them.
func (w *metricsWindow) rotate() MetricsSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := MetricsSnapshot{
		TrafficPerInterval: w.liveTraffic,
		MaxLatency:         w.liveMaxLatency,
	}
	if w.liveTraffic > 0 {
		traffic := time.Duration(w.liveTraffic)
		snap.AverageLatency = (w.liveTotalLatency + traffic - 1) / traffic
	}
	w.published = snap

	w.liveTraffic = 0
	w.liveTotalLatency = 0
	w.liveMaxLatency = 0
	return snap
}

func (w *metricsWindow) snapshot() MetricsSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}

// runRotation rotates w every interval until stop is closed.
func runRotation(w *metricsWindow, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.rotate()
		case <-stop:
			return
		}
	}
}
