package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/alamak-sim/copsimcar/internal/config"
	gormstorage "github.com/alamak-sim/copsimcar/internal/storage/gorm"
	"github.com/alamak-sim/copsimcar/internal/storage/memory"
	pgstorage "github.com/alamak-sim/copsimcar/internal/storage/postgres"
	sqlitestorage "github.com/alamak-sim/copsimcar/internal/storage/sqlite"
)

// NewBackend creates the journal backend selected by cfg.Type. The backend
// still needs Init.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	writer := gormstorage.Config{
		QueueSize:     cfg.QueueSize,
		FlushInterval: cfg.FlushInterval,
	}

	switch cfg.Type {
	case "postgres":
		logger.Info("Postgres journal backend selected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return pgstorage.New(cfg.Postgres, writer, logger, dbLog), nil
	case "sqlite":
		backend, err := sqlitestorage.New(cfg.SQLite, writer, logger, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite journal backend selected", "path", cfg.SQLite.Path, "dumpPath", cfg.SQLite.DumpPath)
		return backend, nil
	case "memory", "":
		logger.Info("Memory journal backend selected", "outputDir", cfg.Memory.OutputDir)
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
