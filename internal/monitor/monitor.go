// Package monitor periodically writes the control loop status to a file and
// to the run journal.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alamak-sim/copsimcar/internal/drive"
	"github.com/alamak-sim/copsimcar/internal/model"
)

// StatusRecorder stores status samples.
type StatusRecorder interface {
	RecordStatus(s *model.LoopStatus) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats func() drive.StatsSnapshot
	// Recorder is optional.
	Recorder   StatusRecorder
	RunID      string
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Status is what the status file shows.
type Status struct {
	Time             time.Time `json:"time"`
	RunID            string    `json:"runId"`
	Cycles           int64     `json:"cycles"`
	CyclesPerSecond  float64   `json:"cyclesPerSecond"`
	Resets           int64     `json:"resets"`
	ActuatorFailures int64     `json:"actuatorFailures"`
	LastCaptureMs    float32   `json:"lastCaptureMs"`
	Uptime           string    `json:"uptime"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps: deps,
		log:  deps.Logger.With("component", "monitor"),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus samples the loop counters.
func (s *Service) GetStatus(now time.Time) Status {
	st := s.deps.Stats()
	return Status{
		Time:             now.UTC(),
		RunID:            s.deps.RunID,
		Cycles:           st.Cycles,
		CyclesPerSecond:  st.CyclesPerSecond(),
		Resets:           st.Resets,
		ActuatorFailures: st.ActuatorFailures,
		LastCaptureMs:    float32(st.LastCapture.Microseconds()) / 1000,
		Uptime:           st.Uptime.Truncate(time.Second).String(),
	}
}

// Start starts the status monitor goroutine. It stops when ctx is done or
// Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0755); err != nil {
			return fmt.Errorf("error creating status directory: %w", err)
		}
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.isRunning = true
	go s.run(ctx, statusFile)
	return nil
}

func (s *Service) run(ctx context.Context, statusFile *os.File) {
	defer func() {
		if statusFile != nil {
			statusFile.Close()
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		close(s.done)
	}()

	s.log.Debug("Starting status monitor", "interval", s.deps.Interval)
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.report(s.GetStatus(now), statusFile)
		}
	}
}

func (s *Service) report(status Status, statusFile *os.File) {
	if statusFile != nil {
		body, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			body = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		if err := statusFile.Truncate(0); err == nil {
			_, _ = statusFile.Seek(0, 0)
			_, err = statusFile.Write(append(body, '\n'))
		}
		if err != nil {
			s.log.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Recorder != nil {
		err := s.deps.Recorder.RecordStatus(&model.LoopStatus{
			Time:             status.Time,
			Cycles:           status.Cycles,
			CyclesPerSecond:  status.CyclesPerSecond,
			Resets:           status.Resets,
			ActuatorFailures: status.ActuatorFailures,
			LastCaptureMs:    status.LastCaptureMs,
		})
		if err != nil {
			s.log.Warn("Error recording loop status", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
