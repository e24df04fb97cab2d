// Package config loads copsim_car.cfg.json with viper and exposes typed views
// of its sections.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "copsim_car.cfg.json"

// SimConfig holds the remote API session settings.
type SimConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Path            string        `json:"path" mapstructure:"path"`
	ConnectTimeout  time.Duration `json:"connectTimeout" mapstructure:"connectTimeout"`
	Retries         int           `json:"retries" mapstructure:"retries"`
	BlockingTimeout time.Duration `json:"blockingTimeout" mapstructure:"blockingTimeout"`
}

// ObjectsConfig names the car's objects in the scene.
type ObjectsConfig struct {
	LeftMotor    string `json:"leftMotor" mapstructure:"leftMotor"`
	RightMotor   string `json:"rightMotor" mapstructure:"rightMotor"`
	Servo        string `json:"servo" mapstructure:"servo"`
	VisionSensor string `json:"visionSensor" mapstructure:"visionSensor"`
}

// CarConfig holds the physical model of the car.
type CarConfig struct {
	Resolution       int           `json:"resolution" mapstructure:"resolution"`
	MaxSteerAngleDeg float64       `json:"maxSteerAngleDeg" mapstructure:"maxSteerAngleDeg"`
	WheelDiameter    float64       `json:"wheelDiameter" mapstructure:"wheelDiameter"`
	MaxLinearSpeed   float64       `json:"maxLinearSpeed" mapstructure:"maxLinearSpeed"`
	RatedTorque      float64       `json:"ratedTorque" mapstructure:"ratedTorque"`
	TorqueDivisor    float64       `json:"torqueDivisor" mapstructure:"torqueDivisor"`
	ResetScript      string        `json:"resetScript" mapstructure:"resetScript"`
	ResetFunction    string        `json:"resetFunction" mapstructure:"resetFunction"`
	Objects          ObjectsConfig `json:"objects" mapstructure:"objects"`
}

// CaptureConfig bounds the wait for a camera frame.
type CaptureConfig struct {
	Budget       int           `json:"budget" mapstructure:"budget"`
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
}

// GamepadConfig selects the joystick device and its mapping.
type GamepadConfig struct {
	Device      string `json:"device" mapstructure:"device"`
	SteerAxis   int    `json:"steerAxis" mapstructure:"steerAxis"`
	SpeedAxis   int    `json:"speedAxis" mapstructure:"speedAxis"`
	ResetButton int    `json:"resetButton" mapstructure:"resetButton"`
}

// DriveConfig tunes input shaping and the demo pattern.
type DriveConfig struct {
	Deadzone            int     `json:"deadzone" mapstructure:"deadzone"`
	InnerWheelReduction float64 `json:"innerWheelReduction" mapstructure:"innerWheelReduction"`
	OscillatorPeriod    int     `json:"oscillatorPeriod" mapstructure:"oscillatorPeriod"`
}

// TrackviewConfig selects how the camera strip is shown.
type TrackviewConfig struct {
	Renderer string `json:"renderer" mapstructure:"renderer"`
	Height   int    `json:"height" mapstructure:"height"`
	Scale    int    `json:"scale" mapstructure:"scale"`
	PNGPath  string `json:"pngPath" mapstructure:"pngPath"`
}

// MemoryConfig holds in-memory/JSON journal settings.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite journal settings. An empty Path keeps the
// database in memory and dumps it to DumpPath periodically.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds PostgreSQL journal settings.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig selects the run journal backend.
type StorageConfig struct {
	Type          string         `json:"type" mapstructure:"type"`
	QueueSize     int            `json:"queueSize" mapstructure:"queueSize"`
	FlushInterval time.Duration  `json:"flushInterval" mapstructure:"flushInterval"`
	Memory        MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres      PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// InfluxConfig holds control telemetry settings.
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Protocol  string `json:"protocol" mapstructure:"protocol"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// MonitorConfig holds status file settings.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// SetDefaults registers every default value. Load calls it; tests and
// callers that run without a file may call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./carlogs")

	viper.SetDefault("sim.host", "127.0.0.1")
	viper.SetDefault("sim.path", "/")
	viper.SetDefault("sim.connectTimeout", "2000ms")
	viper.SetDefault("sim.retries", 5)
	viper.SetDefault("sim.blockingTimeout", "5s")

	viper.SetDefault("car.resolution", 128)
	viper.SetDefault("car.maxSteerAngleDeg", 30.0)
	viper.SetDefault("car.wheelDiameter", 0.064)
	viper.SetDefault("car.maxLinearSpeed", 1.2)
	viper.SetDefault("car.ratedTorque", 0.1)
	viper.SetDefault("car.torqueDivisor", 3.0)
	viper.SetDefault("car.resetScript", "Board")
	viper.SetDefault("car.resetFunction", "restart")
	viper.SetDefault("car.objects.leftMotor", "Motor_Left")
	viper.SetDefault("car.objects.rightMotor", "Motor_Right")
	viper.SetDefault("car.objects.servo", "Servo")
	viper.SetDefault("car.objects.visionSensor", "Vision_Sensor")

	viper.SetDefault("capture.budget", 5000)
	viper.SetDefault("capture.pollInterval", "1ms")

	viper.SetDefault("gamepad.device", "/dev/input/js0")
	viper.SetDefault("gamepad.steerAxis", 3)
	viper.SetDefault("gamepad.speedAxis", 1)
	viper.SetDefault("gamepad.resetButton", 5)

	viper.SetDefault("drive.deadzone", 32)
	viper.SetDefault("drive.innerWheelReduction", 0.8)
	viper.SetDefault("drive.oscillatorPeriod", 100)

	viper.SetDefault("trackview.renderer", "terminal")
	viper.SetDefault("trackview.height", 256)
	viper.SetDefault("trackview.scale", 4)
	viper.SetDefault("trackview.pngPath", "./carlogs/trackview.png")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.queueSize", 1024)
	viper.SetDefault("storage.flushInterval", "1s")
	viper.SetDefault("storage.memory.outputDir", "./runs")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./runs/copsim_car.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "copsim")
	viper.SetDefault("storage.postgres.sslMode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "copsim")
	viper.SetDefault("influx.bucket", "car_telemetry")
	viper.SetDefault("influx.backupDir", "./carlogs/influx")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "copsim-car")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "./carlogs/status.txt")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file is missing.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetSimConfig() SimConfig {
	return SimConfig{
		Host:            viper.GetString("sim.host"),
		Path:            viper.GetString("sim.path"),
		ConnectTimeout:  viper.GetDuration("sim.connectTimeout"),
		Retries:         viper.GetInt("sim.retries"),
		BlockingTimeout: viper.GetDuration("sim.blockingTimeout"),
	}
}

func GetCarConfig() CarConfig {
	return CarConfig{
		Resolution:       viper.GetInt("car.resolution"),
		MaxSteerAngleDeg: viper.GetFloat64("car.maxSteerAngleDeg"),
		WheelDiameter:    viper.GetFloat64("car.wheelDiameter"),
		MaxLinearSpeed:   viper.GetFloat64("car.maxLinearSpeed"),
		RatedTorque:      viper.GetFloat64("car.ratedTorque"),
		TorqueDivisor:    viper.GetFloat64("car.torqueDivisor"),
		ResetScript:      viper.GetString("car.resetScript"),
		ResetFunction:    viper.GetString("car.resetFunction"),
		Objects: ObjectsConfig{
			LeftMotor:    viper.GetString("car.objects.leftMotor"),
			RightMotor:   viper.GetString("car.objects.rightMotor"),
			Servo:        viper.GetString("car.objects.servo"),
			VisionSensor: viper.GetString("car.objects.visionSensor"),
		},
	}
}

func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Budget:       viper.GetInt("capture.budget"),
		PollInterval: viper.GetDuration("capture.pollInterval"),
	}
}

func GetGamepadConfig() GamepadConfig {
	return GamepadConfig{
		Device:      viper.GetString("gamepad.device"),
		SteerAxis:   viper.GetInt("gamepad.steerAxis"),
		SpeedAxis:   viper.GetInt("gamepad.speedAxis"),
		ResetButton: viper.GetInt("gamepad.resetButton"),
	}
}

func GetDriveConfig() DriveConfig {
	return DriveConfig{
		Deadzone:            viper.GetInt("drive.deadzone"),
		InnerWheelReduction: viper.GetFloat64("drive.innerWheelReduction"),
		OscillatorPeriod:    viper.GetInt("drive.oscillatorPeriod"),
	}
}

func GetTrackviewConfig() TrackviewConfig {
	return TrackviewConfig{
		Renderer: viper.GetString("trackview.renderer"),
		Height:   viper.GetInt("trackview.height"),
		Scale:    viper.GetInt("trackview.scale"),
		PNGPath:  viper.GetString("trackview.pngPath"),
	}
}

// GetStorageConfig returns the journal settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		QueueSize:     viper.GetInt("storage.queueSize"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslMode"),
		},
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Protocol:  viper.GetString("influx.protocol"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// Snapshot returns the merged configuration with secrets masked. It is
// stored with every run.
func Snapshot() map[string]any {
	settings := viper.AllSettings()
	redact(settings)
	return settings
}

func redact(m map[string]any) {
	for k, v := range m {
		switch lk := strings.ToLower(k); {
		case strings.Contains(lk, "password"), strings.Contains(lk, "token"):
			m[k] = "***"
		default:
			if sub, ok := v.(map[string]any); ok {
				redact(sub)
			}
		}
	}
}
