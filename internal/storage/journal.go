package storage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alamak-sim/copsimcar/internal/drive"
	"github.com/alamak-sim/copsimcar/internal/model"
	"github.com/alamak-sim/copsimcar/internal/run"
)

// Journal records the current run in a Backend. It observes the control loop
// and stores its events; individual cycles are only counted.
type Journal struct {
	backend Backend
	run     *run.Context
	logger  *slog.Logger
	cycle   atomic.Int64
}

// NewJournal creates a journal for the run in rc.
func NewJournal(backend Backend, rc *run.Context, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		backend: backend,
		run:     rc,
		logger:  logger.With("component", "journal"),
	}
}

// Start stores the run record and assigns its journal ID.
func (j *Journal) Start(snapshot []byte) error {
	var err error
	j.run.Update(func(r *model.Run) {
		r.Config = snapshot
		err = j.backend.StartRun(r)
	})
	if err != nil {
		return err
	}
	j.logger.Info("Run started", "id", j.run.ID())
	return nil
}

// Finish stores the final counters and exit reason of the run.
func (j *Journal) Finish(stats drive.StatsSnapshot, reason string) error {
	var err error
	j.run.Update(func(r *model.Run) {
		end := time.Now().UTC()
		r.EndTime = &end
		r.Cycles = stats.Cycles
		r.Resets = stats.Resets
		r.ActuatorFailures = stats.ActuatorFailures
		r.ExitReason = reason
		err = j.backend.EndRun(r)
	})
	if err != nil {
		return err
	}
	j.logger.Info("Run finished", "cycles", stats.Cycles, "reason", reason)
	if e, ok := j.backend.(Exportable); ok && e.ExportedFilePath() != "" {
		j.logger.Info("Journal exported", "path", e.ExportedFilePath())
	}
	return nil
}

// RecordStatus stores a loop status sample for the run.
func (j *Journal) RecordStatus(s *model.LoopStatus) error {
	s.RunID = j.run.ID()
	return j.backend.RecordStatus(s)
}

func (j *Journal) Cycle(_ context.Context, r drive.CycleReport) {
	j.cycle.Store(r.Cycle)
}

func (j *Journal) Event(_ context.Context, kind drive.EventKind, detail string) {
	e := &model.Event{
		Time:   time.Now().UTC(),
		RunID:  j.run.ID(),
		Cycle:  j.cycle.Load(),
		Kind:   string(kind),
		Detail: detail,
	}
	if err := j.backend.RecordEvent(e); err != nil {
		j.logger.Warn("Failed to journal event", "kind", kind, "error", err)
	}
}
