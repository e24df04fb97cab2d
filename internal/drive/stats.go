package drive

import (
	"sync/atomic"
	"time"
)

// Stats are the loop counters. They are updated by the loop goroutine and
// may be read from any goroutine.
type Stats struct {
	cycles           atomic.Int64
	resets           atomic.Int64
	actuatorFailures atomic.Int64
	captureNanos     atomic.Int64
	started          atomic.Int64
}

// StatsSnapshot is a consistent-enough copy of Stats for reporting.
type StatsSnapshot struct {
	Cycles           int64         `json:"cycles"`
	Resets           int64         `json:"resets"`
	ActuatorFailures int64         `json:"actuator_failures"`
	LastCapture      time.Duration `json:"last_capture_ns"`
	Uptime           time.Duration `json:"uptime_ns"`
}

func (s *Stats) start(now time.Time) {
	s.started.Store(now.UnixNano())
}

func (s *Stats) Snapshot() StatsSnapshot {
	var uptime time.Duration
	if started := s.started.Load(); started != 0 {
		uptime = time.Since(time.Unix(0, started))
	}
	return StatsSnapshot{
		Cycles:           s.cycles.Load(),
		Resets:           s.resets.Load(),
		ActuatorFailures: s.actuatorFailures.Load(),
		LastCapture:      time.Duration(s.captureNanos.Load()),
		Uptime:           uptime,
	}
}

// CyclesPerSecond is the average loop rate since start.
func (s StatsSnapshot) CyclesPerSecond() float64 {
	if s.Uptime <= 0 {
		return 0
	}
	return float64(s.Cycles) / s.Uptime.Seconds()
}
