package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/run"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		program string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "carlogs",
			program: "demo_car_gamepad",
			want:    filepath.Join("carlogs", "demo_car_gamepad.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./carlogs",
			program: "demo_car_simple",
			want:    filepath.Join(".", "carlogs", "demo_car_simple.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "copsim"),
			program: "demo_car_gamepad",
			want:    filepath.Join("/var", "log", "copsim", "demo_car_gamepad.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.program, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContextHandler_AddsDynamicAttrs(t *testing.T) {
	var buf bytes.Buffer
	runID := "first"
	h := NewContextHandler(slog.NewJSONHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.String("run_id", runID)}
	})
	logger := slog.New(h).With("component", "test")

	logger.Info("one")
	runID = "second"
	logger.WithGroup("g").Info("two", "k", 1)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "first", first["run_id"])
	assert.Equal(t, "test", first["component"])
	assert.Equal(t, "second", second["run_id"])
	assert.Equal(t, "test", second["component"])
	assert.Equal(t, map[string]any{"k": float64(1)}, second["g"])
}

func TestContextHandler_InjectsRunID(t *testing.T) {
	var buf bytes.Buffer
	rc := run.NewContext("demo_car_gamepad", "127.0.0.1", 19997)
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil), rc.LogAttrs))

	logger.With("component", "car").WithGroup("capture").Info("Frame captured", "attempts", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, rc.UUID(), entry["run_id"])
	assert.Equal(t, "car", entry["component"])
	assert.Equal(t, map[string]any{"attempts": float64(2)}, entry["capture"])
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil))

	logger.WithGroup("loop").Info("Reset requested", "source", "console")

	assert.Contains(t, buf.String(), "loop.source=console")
	assert.NotContains(t, buf.String(), "run_id")
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "WARN", "influx")

	logger.Info().Msg("filtered")
	logger.Warn().Str("bucket", "car_telemetry").Msg("backup written")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "influx", entry["component"])
	assert.Equal(t, "car_telemetry", entry["bucket"])
	assert.Contains(t, entry, "time")
}

func TestNewZerolog_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "chatty", "database")

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
