// Package logging sets up slog with console, file, OTel and Graylog outputs,
// and the zerolog loggers of the storage and telemetry managers.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the log file of one program run, e.g.
// logs/demo_car_gamepad.20260212_213836.log.
func LogFilePath(logsDir, program string, runStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", program, runStart.Format("20060102_150405")),
	)
}
