package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/database"
	"github.com/alamak-sim/copsimcar/internal/model"
	gormstorage "github.com/alamak-sim/copsimcar/internal/storage/gorm"
)

func countRuns(t *testing.T, path string) int64 {
	t.Helper()
	db, err := database.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	defer database.Close(db)
	var n int64
	require.NoError(t, db.Model(&model.Run{}).Count(&n).Error)
	return n
}

func TestInMemoryDumpOnClose(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "runs", "journal.db")
	b, err := New(config.SQLiteConfig{DumpPath: dump}, gormstorage.Config{FlushInterval: time.Hour}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	r := &model.Run{UUID: "run-1", StartTime: time.Now()}
	require.NoError(t, b.StartRun(r))
	require.NoError(t, b.RecordEvent(&model.Event{RunID: r.ID, Kind: model.EventQuit}))
	require.NoError(t, b.EndRun(r))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.Equal(t, dump, b.ExportedFilePath())
	assert.Equal(t, int64(1), countRuns(t, dump))
}

func TestPeriodicDump(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "journal.db")
	b, err := New(config.SQLiteConfig{DumpPath: dump, DumpInterval: 10 * time.Millisecond}, gormstorage.Config{}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.StartRun(&model.Run{UUID: "run-2", StartTime: time.Now()}))

	assert.Eventually(t, func() bool {
		info, err := os.Stat(dump)
		return err == nil && info.Size() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "journal.db")
	b, err := New(config.SQLiteConfig{Path: path}, gormstorage.Config{}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRun(&model.Run{UUID: "run-3", StartTime: time.Now()}))
	require.NoError(t, b.Close())

	assert.Equal(t, path, b.ExportedFilePath())
	assert.Equal(t, int64(1), countRuns(t, path))
}
