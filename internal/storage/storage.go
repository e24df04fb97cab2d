// Package storage records the run journal: one run row per program start,
// the control loop events and periodic loop status samples.
package storage

import "github.com/alamak-sim/copsimcar/internal/model"

// Backend is the interface all journal implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// StartRun stores r and assigns its ID.
	StartRun(r *model.Run) error
	// EndRun stores the final state of r.
	EndRun(r *model.Run) error

	RecordEvent(e *model.Event) error
	RecordStatus(s *model.LoopStatus) error
}

// Exportable is implemented by backends that write the journal to a file
// when a run ends.
type Exportable interface {
	ExportedFilePath() string
}
