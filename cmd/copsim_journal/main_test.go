package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/database"
	"github.com/alamak-sim/copsimcar/internal/model"
	"github.com/alamak-sim/copsimcar/internal/storage/memory"
)

const runUUID = "5c0ffee0-0000-4000-8000-000000000001"

// journalDir writes a sqlite journal with one run and a config that points
// at it.
func journalDir(t *testing.T) string {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")

	log := zerolog.Nop()
	db, err := database.OpenSQLite(dbPath, log)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, log))
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)
	end := start.Add(time.Minute)
	r := &model.Run{UUID: runUUID, Program: "demo_car_gamepad", Port: 19997,
		StartTime: start, EndTime: &end, Cycles: 1200, Resets: 1, ExitReason: "quit"}
	require.NoError(t, db.Create(r).Error)
	require.NoError(t, db.Create(&model.Event{RunID: r.ID, Time: start.Add(time.Second), Cycle: 12, Kind: model.EventReset}).Error)
	require.NoError(t, db.Create(&model.Event{RunID: r.ID, Time: end, Cycle: 1200, Kind: model.EventQuit, Detail: "console"}).Error)
	require.NoError(t, database.Close(db))

	cfg := map[string]any{"storage": map[string]any{"type": "sqlite", "sqlite": map[string]any{"path": dbPath}}}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), data, 0644))
	return dir
}

func TestRun_Runs(t *testing.T) {
	dir := journalDir(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"--config", dir, "runs"}, &out))
	assert.Contains(t, out.String(), runUUID)
	assert.Contains(t, out.String(), "demo_car_gamepad")
	assert.Contains(t, out.String(), "1m0s")
}

func TestRun_Events(t *testing.T) {
	dir := journalDir(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"--config", dir, "events", "5c0ffee0"}, &out))
	assert.Contains(t, out.String(), "reset")
	assert.Contains(t, out.String(), "console")
}

func TestRun_ExportGzip(t *testing.T) {
	dir := journalDir(t)
	outDir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, run([]string{"--config", dir, "export", "--out", outDir, "--gzip", runUUID}, &out))

	f, err := os.Open(filepath.Join(outDir, "demo_car_gamepad_"+runUUID+".json.gz"))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	var export memory.Export
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, runUUID, export.Run.UUID)
	assert.Len(t, export.Events, 2)
	assert.Empty(t, export.Statuses)
}

func TestRun_Errors(t *testing.T) {
	dir := journalDir(t)
	var out bytes.Buffer

	assert.ErrorContains(t, run([]string{"--config", dir, "replay"}, &out), "unknown command")
	assert.Error(t, run([]string{"--config", dir, "events"}, &out))
	assert.Error(t, run([]string{"--config", dir, "events", "ffff"}, &out))

	viper.Reset()
	empty := t.TempDir()
	assert.ErrorContains(t, run([]string{"--config", empty, "runs"}, &out), "no database")
}
