// Package pgstorage keeps the journal in PostgreSQL.
package pgstorage

import (
	"log/slog"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/database"
	gormstorage "github.com/alamak-sim/copsimcar/internal/storage/gorm"
)

// New creates a GORM journal that connects to PostgreSQL on Init.
func New(cfg config.PostgresConfig, writer gormstorage.Config, logger *slog.Logger, dbLog zerolog.Logger) *gormstorage.Backend {
	return gormstorage.New(gormstorage.Dependencies{
		Open: func() (*gorm.DB, error) {
			return database.OpenPostgres(cfg, dbLog)
		},
		Logger:   logger,
		DBLogger: dbLog,
	}, writer)
}
