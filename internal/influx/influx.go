// Package influx sends control loop telemetry to InfluxDB. When the server
// cannot be reached the points are appended as gzipped line protocol to a
// backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/drive"
)

const (
	MeasurementCycle = "control_cycle"
	MeasurementEvent = "control_event"

	retentionSeconds = 60 * 60 * 24 * 30
)

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg    config.InfluxConfig
	runID  string
	Logger zerolog.Logger

	Client  influxdb2.Client
	Writer  influxdb2_api.WriteAPI
	IsValid bool

	mu           sync.Mutex
	backupFile   *os.File
	BackupWriter *gzip.Writer
	BackupPath   string
}

// NewManager creates a manager that tags every point with runID.
func NewManager(cfg config.InfluxConfig, runID string, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		runID:  runID,
		Logger: log,
	}
}

// Connect pings the server and prepares the bucket. If the server is not
// reachable the backup file is opened and Connect still succeeds.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		if err := m.openBackup(); err != nil {
			return err
		}
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB not reachable, writing telemetry to backup file")
		return nil
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}

	dir := m.cfg.BackupDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %v", err)
	}
	m.BackupPath = filepath.Join(dir, fmt.Sprintf("%s_%s.lp.gz", m.cfg.Bucket, time.Now().UTC().Format("20060102_150405")))

	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	buckets := m.Client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	// the line protocol already ends with a newline
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// CyclePoint builds the telemetry point of one control cycle.
func CyclePoint(runID string, r drive.CycleReport) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementCycle).
		AddTag("run_id", runID).
		AddField("cycle", r.Cycle).
		AddField("steer", r.Command.Steer).
		AddField("left", r.Command.Left).
		AddField("right", r.Command.Right).
		AddField("capture_ms", float64(r.Capture.Microseconds())/1000).
		SortFields().
		SetTime(r.Time)
}

// EventPoint builds the telemetry point of a loop event.
func EventPoint(runID string, kind drive.EventKind, detail string, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementEvent).
		AddTag("run_id", runID).
		AddTag("kind", string(kind)).
		AddField("detail", detail).
		SortTags().
		SetTime(at)
}

func (m *Manager) Cycle(_ context.Context, r drive.CycleReport) {
	if err := m.WritePoint(CyclePoint(m.runID, r)); err != nil {
		m.Logger.Debug().Err(err).Msg("Dropped cycle point")
	}
}

func (m *Manager) Event(_ context.Context, kind drive.EventKind, detail string) {
	if err := m.WritePoint(EventPoint(m.runID, kind, detail, time.Now())); err != nil {
		m.Logger.Warn().Err(err).Str("kind", string(kind)).Msg("Dropped event point")
	}
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.BackupWriter != nil {
		err = m.BackupWriter.Close()
		if cerr := m.backupFile.Close(); err == nil {
			err = cerr
		}
		m.BackupWriter = nil
	}
	return err
}
