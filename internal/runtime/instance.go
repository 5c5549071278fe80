package runtime

import (
	"context"
	"encoding/json"
	"time"
)

// InstanceSubject is the subject of the controller every service registers
// to report its identity and load.
const InstanceSubject = "instance"

// InstanceInfo is the introspection payload of a running service.
type InstanceInfo struct {
	Name               string      `json:"name"`
	Version            string      `json:"version,omitempty"`
	StartedAt          time.Time   `json:"startedAt"`
	Memory             MemoryUsage `json:"memory"`
	CPUPercent         float64     `json:"cpuPercent"`
	Goroutines         int         `json:"goroutines"`
	TrafficPerInterval int64       `json:"trafficPerInterval"`
	MaxLatencyMs       int64       `json:"maxLatencyMs"`
	AverageLatencyMs   int64       `json:"averageLatencyMs"`
}

// Instance samples the introspection payload. Traffic and latency are the
// values of the last metrics rotation.
func (s *Service) Instance() InstanceInfo {
	usage := s.resources.Snapshot()
	m := s.Metrics()
	return InstanceInfo{
		Name:               s.Name(),
		Version:            s.Conf.Version,
		StartedAt:          s.startedAt,
		Memory:             usage.Memory,
		CPUPercent:         usage.CPUPercent,
		Goroutines:         usage.Goroutines,
		TrafficPerInterval: m.TrafficPerInterval,
		MaxLatencyMs:       m.MaxLatencyMs(),
		AverageLatencyMs:   m.AverageLatencyMs(),
	}
}

func (s *Service) handleInstance(context.Context, *Ether, json.RawMessage, string) (any, error) {
	return s.Instance(), nil
}
