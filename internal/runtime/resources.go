package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// MemoryUsage mirrors the interesting parts of runtime.MemStats.
type MemoryUsage struct {
	Sys        uint64 `json:"sys"`
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	StackInuse uint64 `json:"stackInuse"`
}

// ResourceUsage is a coarse process sample.
type ResourceUsage struct {
	CPUPercent float64     `json:"cpuPercent"`
	Memory     MemoryUsage `json:"memory"`
	Goroutines int         `json:"goroutines"`
}

// resourceTracker samples CPU and memory usage for the instance controller.
// CPU usage is computed against the previous sample.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: "/sched/cpu:seconds"}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: "/sched/cpu:seconds"}}
	}

	metrics.Read(r.samples)
	sample := r.samples[0]
	haveCPU := sample.Value.Kind() == metrics.KindFloat64
	var cpuSeconds float64
	if haveCPU {
		cpuSeconds = sample.Value.Float64()
	}
	now := time.Now()

	var cpuPercent float64
	if haveCPU && !r.lastSample.IsZero() {
		deltaCPU := cpuSeconds - r.lastCPUSeconds
		deltaWall := now.Sub(r.lastSample).Seconds()
		if deltaWall > 0 && r.numCPU > 0 {
			cpuPercent = (deltaCPU / deltaWall) / r.numCPU * 100
		}
	}

	if haveCPU {
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return ResourceUsage{
		CPUPercent: cpuPercent,
		Memory: MemoryUsage{
			Sys:        mem.Sys,
			HeapAlloc:  mem.HeapAlloc,
			HeapInuse:  mem.HeapInuse,
			StackInuse: mem.StackInuse,
		},
		Goroutines: runtime.NumGoroutine(),
	}
}
