package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/model"
)

func testRun() *model.Run {
	return &model.Run{
		UUID:      "0b6c3a0e-5d1f-4a7e-9d36-6e0a1b2c3d4e",
		Program:   "demo_car_simple",
		Port:      19997,
		StartTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func readExport(t *testing.T, path string, compressed bool) Export {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var dec *json.Decoder
	if compressed {
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gz.Close()
		dec = json.NewDecoder(gz)
	} else {
		dec = json.NewDecoder(f)
	}
	var export Export
	require.NoError(t, dec.Decode(&export))
	return export
}

func TestStartRunAssignsID(t *testing.T) {
	b := New(config.MemoryConfig{})
	r := testRun()

	require.NoError(t, b.StartRun(r))
	assert.Equal(t, uint(1), r.ID)
}

func TestRecordAndExport(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.Init())
	r := testRun()
	require.NoError(t, b.StartRun(r))

	e := &model.Event{RunID: r.ID, Kind: model.EventReset, Cycle: 12}
	require.NoError(t, b.RecordEvent(e))
	assert.Equal(t, uint(1), e.ID)
	require.NoError(t, b.RecordStatus(&model.LoopStatus{RunID: r.ID, Cycles: 100}))
	assert.Len(t, b.Events(), 1)
	assert.Len(t, b.Statuses(), 1)

	r.Cycles = 150
	r.ExitReason = "quit"
	require.NoError(t, b.EndRun(r))

	path := b.ExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "demo_car_simple_20260301_120000_0b6c3a0e.json"), path)

	export := readExport(t, path, false)
	assert.Equal(t, int64(150), export.Run.Cycles)
	assert.Equal(t, "quit", export.Run.ExitReason)
	require.Len(t, export.Events, 1)
	assert.Equal(t, model.EventReset, export.Events[0].Kind)
	assert.Equal(t, int64(100), export.Statuses[0].Cycles)
	require.NoError(t, b.Close())
}

func TestExportCompressed(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: filepath.Join(dir, "nested"), CompressOutput: true})
	r := testRun()
	require.NoError(t, b.StartRun(r))
	require.NoError(t, b.EndRun(r))

	path := b.ExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".json.gz"))

	export := readExport(t, path, true)
	assert.Equal(t, "demo_car_simple", export.Run.Program)
	assert.Empty(t, export.Events)
	assert.NotNil(t, export.Statuses)
}

func TestStartRunResets(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartRun(testRun()))
	require.NoError(t, b.RecordEvent(&model.Event{Kind: model.EventQuit}))

	require.NoError(t, b.StartRun(testRun()))
	assert.Empty(t, b.Events())
}

func TestEndRunWithoutOutputDir(t *testing.T) {
	b := New(config.MemoryConfig{})
	r := testRun()
	require.NoError(t, b.StartRun(r))

	require.NoError(t, b.EndRun(r))
	assert.Empty(t, b.ExportedFilePath())
}
