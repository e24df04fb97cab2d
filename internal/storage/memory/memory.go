// Package memory keeps the journal in memory and exports it as JSON when the
// run ends.
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/model"
)

// Export is the root JSON structure of an exported run.
type Export struct {
	Run      model.Run          `json:"run"`
	Events   []model.Event      `json:"events"`
	Statuses []model.LoopStatus `json:"statuses"`
}

// Backend stores the journal in memory.
type Backend struct {
	cfg config.MemoryConfig

	mu             sync.RWMutex
	run            *model.Run
	events         []model.Event
	statuses       []model.LoopStatus
	idCounter      uint
	lastExportPath string
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

// StartRun begins a new journal, dropping anything recorded before.
func (b *Backend) StartRun(r *model.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.ID == 0 {
		r.ID = 1
	}
	b.run = r
	b.events = nil
	b.statuses = nil
	b.idCounter = 0
	return nil
}

// EndRun exports the journal.
func (b *Backend) EndRun(r *model.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = r
	return b.exportJSON()
}

// RecordEvent appends an event.
func (b *Backend) RecordEvent(e *model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	e.ID = b.idCounter
	b.events = append(b.events, *e)
	return nil
}

// RecordStatus appends a status sample.
func (b *Backend) RecordStatus(s *model.LoopStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.statuses = append(b.statuses, *s)
	return nil
}

// Events returns a copy of the recorded events.
func (b *Backend) Events() []model.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.Event(nil), b.events...)
}

// Statuses returns a copy of the recorded status samples.
func (b *Backend) Statuses() []model.LoopStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.LoopStatus(nil), b.statuses...)
}

// ExportedFilePath returns the path of the last export, empty before one.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func (b *Backend) exportJSON() error {
	if b.run == nil {
		return fmt.Errorf("no run started")
	}
	if b.cfg.OutputDir == "" {
		return nil
	}

	export := Export{
		Run:      *b.run,
		Events:   b.events,
		Statuses: b.statuses,
	}
	if export.Events == nil {
		export.Events = []model.Event{}
	}
	if export.Statuses == nil {
		export.Statuses = []model.LoopStatus{}
	}

	name := fmt.Sprintf("%s_%s", b.run.Program, b.run.StartTime.UTC().Format("20060102_150405"))
	if len(b.run.UUID) >= 8 {
		name += "_" + b.run.UUID[:8]
	}
	if b.cfg.CompressOutput {
		name += ".json.gz"
	} else {
		name += ".json"
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(b.cfg.OutputDir, name)

	if err := WriteExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

// WriteExport writes data as JSON to path, gzipped when compress is set.
func WriteExport(path string, data Export, compress bool) error {
	if compress {
		return writeGzipJSON(path, data)
	}
	return writeJSON(path, data)
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(data); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
