// Package sqlitestorage keeps the journal in SQLite. With no file path the
// database lives in memory and is dumped to disk periodically with VACUUM
// INTO, and once more on Close.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/database"
	gormstorage "github.com/alamak-sim/copsimcar/internal/storage/gorm"
)

// Backend wraps the GORM journal for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db    *gorm.DB
	cfg   config.SQLiteConfig
	log   *slog.Logger
	dbLog zerolog.Logger

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New opens the SQLite database described by cfg.
func New(cfg config.SQLiteConfig, writer gormstorage.Config, logger *slog.Logger, dbLog zerolog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.OpenSQLite(cfg.Path, dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:       db,
			Logger:   logger,
			DBLogger: dbLog,
		}, writer),
		db:       db,
		cfg:      cfg,
		log:      logger.With("component", "journal.sqlite"),
		dbLog:    dbLog,
		stopChan: make(chan struct{}),
	}, nil
}

func (b *Backend) inMemory() bool {
	return b.cfg.Path == "" && b.cfg.DumpPath != ""
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.inMemory() {
		if err := os.MkdirAll(filepath.Dir(b.cfg.DumpPath), 0755); err != nil {
			return fmt.Errorf("failed to create dump directory: %w", err)
		}
		if b.cfg.DumpInterval > 0 {
			b.wg.Add(1)
			go b.dumpLoop()
		}
	}
	return nil
}

// Close stops the writers, dumps a final snapshot and closes the database.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
		err = b.Backend.Close()
		if b.inMemory() {
			if derr := database.Dump(b.db, b.cfg.DumpPath, b.dbLog); derr != nil && err == nil {
				err = derr
			} else if derr == nil {
				b.log.Info("Journal dumped to disk", "path", b.cfg.DumpPath)
			}
		}
		if cerr := database.Close(b.db); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// ExportedFilePath returns where the journal is stored on disk.
func (b *Backend) ExportedFilePath() string {
	if b.cfg.Path != "" {
		return b.cfg.Path
	}
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the in-memory database to disk. VACUUM INTO
// takes a point-in-time snapshot, so the writer keeps running meanwhile.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := database.Dump(b.db, b.cfg.DumpPath, b.dbLog); err != nil {
				b.log.Error("Error dumping journal to disk", "error", err)
			}
		}
	}
}
