// Package gormstorage implements the journal on top of GORM. Events and
// status samples are queued and written in batches by a background writer;
// run rows are written synchronously so they get their ID at once.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/alamak-sim/copsimcar/internal/database"
	"github.com/alamak-sim/copsimcar/internal/model"
	"github.com/alamak-sim/copsimcar/internal/queue"
)

// Config tunes the background writer.
type Config struct {
	// QueueSize bounds each write queue. Zero means unbounded.
	QueueSize int
	// FlushInterval is the pause between writer passes. Defaults to 1s.
	FlushInterval time.Duration
}

// Dependencies holds all dependencies for the GORM journal.
type Dependencies struct {
	// DB is used when set. Otherwise Open is called by Init.
	DB       *gorm.DB
	Open     func() (*gorm.DB, error)
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

// Backend writes the journal through GORM.
type Backend struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger

	events   *queue.Queue[model.Event]
	statuses *queue.Queue[model.LoopStatus]

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a GORM journal backend.
func New(deps Dependencies, cfg Config) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Backend{
		deps:     deps,
		cfg:      cfg,
		log:      deps.Logger.With("component", "journal.gorm"),
		events:   queue.New[model.Event](cfg.QueueSize),
		statuses: queue.New[model.LoopStatus](cfg.QueueSize),
	}
}

// DB returns the database handle, nil before Init.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init connects if needed, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		if b.deps.Open == nil {
			return errors.New("no database configured")
		}
		db, err := b.deps.Open()
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		b.deps.DB = db
	}

	if err := database.Migrate(b.deps.DB, b.deps.DBLogger); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writerLoop()
	return nil
}

// Close stops the writer after a final flush. The database stays open.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			b.wg.Wait()
		}
	})
	return nil
}

// StartRun inserts the run row.
func (b *Backend) StartRun(r *model.Run) error {
	if b.deps.DB == nil {
		return errors.New("journal not initialized")
	}
	if err := b.deps.DB.Create(r).Error; err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// EndRun flushes pending records, then updates the run row.
func (b *Backend) EndRun(r *model.Run) error {
	if b.deps.DB == nil {
		return errors.New("journal not initialized")
	}
	b.flush()
	if err := b.deps.DB.Save(r).Error; err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordEvent queues an event.
func (b *Backend) RecordEvent(e *model.Event) error {
	if b.events.Push(*e) == 0 {
		return errors.New("event queue full")
	}
	return nil
}

// RecordStatus queues a status sample.
func (b *Backend) RecordStatus(s *model.LoopStatus) error {
	if b.statuses.Push(*s) == 0 {
		return errors.New("status queue full")
	}
	return nil
}

// Pending returns the number of queued records.
func (b *Backend) Pending() int {
	return b.events.Len() + b.statuses.Len()
}

// writeQueue writes all items from a queue in one transaction. On failure the
// items go back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	if q.Empty() {
		return
	}

	items := q.Drain()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
	if err != nil {
		log.Error("Error writing journal records", "table", name, "count", len(items), "error", err)
		q.Requeue(items...)
		return
	}
	log.Debug("Wrote journal records", "table", name, "count", len(items))
}

func (b *Backend) flush() {
	writeQueue(b.deps.DB, b.events, "events", b.log)
	writeQueue(b.deps.DB, b.statuses, "loop_statuses", b.log)
}

func (b *Backend) writerLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.flush()
			return
		case <-ticker.C:
			b.flush()
		}
	}
}
