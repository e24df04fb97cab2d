// Package app wires the configuration, logging, telemetry and run journal
// around a car and its control loop. Both car programs start through it.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alamak-sim/copsimcar/internal/car"
	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/console"
	"github.com/alamak-sim/copsimcar/internal/dispatcher"
	"github.com/alamak-sim/copsimcar/internal/drive"
	"github.com/alamak-sim/copsimcar/internal/influx"
	"github.com/alamak-sim/copsimcar/internal/logging"
	"github.com/alamak-sim/copsimcar/internal/monitor"
	intOtel "github.com/alamak-sim/copsimcar/internal/otel"
	"github.com/alamak-sim/copsimcar/internal/remoteapi"
	"github.com/alamak-sim/copsimcar/internal/remoteapi/wsapi"
	"github.com/alamak-sim/copsimcar/internal/run"
	"github.com/alamak-sim/copsimcar/internal/storage"
)

// Exit reasons stored with the run.
const (
	ReasonQuit           = "quit"
	ReasonSignal         = "signal"
	ReasonCaptureFailure = "capture_failure"
	ReasonConnectFailure = "connect_failure"
	ReasonStopped        = "stopped"
)

// Options configure New.
type Options struct {
	Program   string
	ConfigDir string
	Port      int
	// Stdin feeds the command console; nil disables it.
	Stdin io.Reader
	// ConsoleOut receives console replies. Defaults to os.Stderr.
	ConsoleOut io.Writer
	// Dialer defaults to the WebSocket transport.
	Dialer remoteapi.Dialer
}

// App holds everything one program run owns.
type App struct {
	opts Options

	Logger *slog.Logger
	Car    *car.Car
	Run    *run.Context

	slogManager *logging.SlogManager
	logFile     *os.File
	provider    *intOtel.Provider
	backend     storage.Backend
	journal     *storage.Journal
	influx      *influx.Manager

	mu       sync.Mutex
	reason   string
	finished bool
	stats    func() drive.StatsSnapshot
}

// New loads the configuration from opts.ConfigDir and sets up logging, the
// run journal, telemetry and the car. Optional outputs that fail to start
// are logged and skipped; only the log file and the car are required.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.ConsoleOut == nil {
		opts.ConsoleOut = os.Stderr
	}
	a := &App{opts: opts}

	cfgErr := config.Load(opts.ConfigDir)

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	sim := config.GetSimConfig()
	a.Run = run.NewContext(opts.Program, sim.Host, opts.Port)

	logPath := logging.LogFilePath(logsDir, opts.Program, a.Run.Run().StartTime)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	a.logFile = f

	level := config.GetString("logLevel")
	otelCfg := config.GetOTelConfig()
	a.provider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    f,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("setting up OpenTelemetry: %w", err)
	}

	logOpts := logging.Options{
		File:     f,
		Level:    level,
		Provider: a.provider.LoggerProvider(),
		Context:  a.Run.LogAttrs,
	}
	var graylogErr error
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address, opts.Program)
		if err != nil {
			graylogErr = err
		} else {
			logOpts.Graylog = w
		}
	}
	a.slogManager = logging.NewSlogManager()
	a.Logger = a.slogManager.Setup(logOpts)

	if cfgErr != nil {
		a.Logger.Warn("Using default configuration", "dir", opts.ConfigDir, "error", cfgErr)
	}
	if graylogErr != nil {
		a.Logger.Warn("Graylog output disabled", "error", graylogErr)
	}
	a.Logger.Info("Starting", "program", opts.Program, "port", opts.Port, "log", logPath)

	a.startJournal(level)
	a.startInflux(ctx, level)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &wsapi.Dialer{Logger: a.Logger, Path: sim.Path}
	}
	a.Car, err = car.New(dialer, CarConfig(), a.Logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) startJournal(level string) {
	dbLog := logging.NewZerolog(a.logFile, level, "storage")
	backend, err := storage.NewBackend(config.GetStorageConfig(), a.Logger, dbLog)
	if err != nil {
		a.Logger.Warn("Run journal disabled", "error", err)
		return
	}
	if err := backend.Init(); err != nil {
		a.Logger.Warn("Run journal disabled", "error", err)
		return
	}
	a.backend = backend

	snapshot, err := json.Marshal(config.Snapshot())
	if err != nil {
		a.Logger.Warn("Config snapshot not stored", "error", err)
		snapshot = nil
	}
	j := storage.NewJournal(backend, a.Run, a.Logger)
	if err := j.Start(snapshot); err != nil {
		a.Logger.Warn("Run not journaled", "error", err)
		return
	}
	a.journal = j
}

func (a *App) startInflux(ctx context.Context, level string) {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}
	m := influx.NewManager(cfg, a.Run.UUID(), logging.NewZerolog(a.logFile, level, "influx"))
	if err := m.Connect(ctx); err != nil {
		a.Logger.Warn("Control telemetry disabled", "error", err)
		return
	}
	a.influx = m
}

// Connect opens the simulator session.
func (a *App) Connect(ctx context.Context) error {
	if err := a.Car.Connect(ctx, a.opts.Port); err != nil {
		a.setReason(ReasonConnectFailure)
		return err
	}
	return nil
}

func (a *App) setReason(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reason == "" {
		a.reason = reason
	}
}

// Reason returns why the run ended, empty while it is running.
func (a *App) Reason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

func (a *App) observers() drive.Observers {
	var obs drive.Observers
	if a.journal != nil {
		obs = append(obs, a.journal)
	}
	if a.influx != nil {
		obs = append(obs, a.influx)
	}
	return obs
}

// Drive runs the control loop with controller until ctx is cancelled, the
// console asks to quit or a frame cannot be captured. Frames go to sink when
// it is not nil. A capture failure ends the run normally.
func (a *App) Drive(ctx context.Context, controller drive.Controller, sink drive.Sink) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	observers := a.observers()
	loop, err := drive.NewLoop(drive.LoopConfig{
		Vehicle:    a.Car,
		Controller: controller,
		Sink:       sink,
		Observer:   observers,
		Resolution: a.Car.Config().Resolution,
		Logger:     a.Logger,
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.stats = loop.Stats
	a.mu.Unlock()

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.Logger))
	if err != nil {
		return err
	}
	console.Register(d, console.Controls{
		Quit: func() {
			a.setReason(ReasonQuit)
			observers.Event(ctx, drive.EventQuit, "console")
			cancel()
		},
		Reset:  loop.RequestReset,
		Status: loop.Stats,
	})

	var mon *monitor.Service
	if mc := config.GetMonitorConfig(); mc.Enabled {
		deps := monitor.Dependencies{
			Stats:      loop.Stats,
			RunID:      a.Run.UUID(),
			StatusFile: mc.StatusFile,
			Interval:   mc.Interval,
			Logger:     a.Logger,
		}
		if a.journal != nil {
			deps.Recorder = a.journal
		}
		mon = monitor.NewService(deps)
		if err := mon.Start(ctx); err != nil {
			a.Logger.Warn("Status monitor disabled", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var loopErr error
	g.Go(func() error {
		defer cancel()
		loopErr = loop.Run(gctx)
		return nil
	})
	if a.opts.Stdin != nil {
		con := console.New(d, a.opts.Stdin, a.opts.ConsoleOut, a.Logger)
		g.Go(func() error {
			return con.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		a.Logger.Warn("Console stopped", "error", err)
	}
	if mon != nil {
		mon.Stop()
	}

	switch {
	case loopErr != nil:
		a.setReason(ReasonCaptureFailure)
		a.Logger.Info("Control loop stopped", "error", loopErr)
	case parent.Err() != nil:
		a.setReason(ReasonSignal)
	default:
		a.setReason(ReasonStopped)
	}
	a.finish()
	return nil
}

// finish ends the journaled run once.
func (a *App) finish() {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	a.finished = true
	if a.reason == "" {
		a.reason = ReasonStopped
	}
	reason, statsFn := a.reason, a.stats
	a.mu.Unlock()

	var stats drive.StatsSnapshot
	if statsFn != nil {
		stats = statsFn()
	}
	a.Logger.Info("Run ended", "reason", reason, "cycles", stats.Cycles, "resets", stats.Resets)
	if a.journal != nil {
		if err := a.journal.Finish(stats, reason); err != nil {
			a.Logger.Warn("Run end not journaled", "error", err)
		}
	}
}

// Close finishes the run if Drive did not, then releases the car and every
// output in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	if a.Car != nil {
		errs = append(errs, a.Car.Close())
	}
	a.finish()
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.influx != nil {
		errs = append(errs, a.influx.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.slogManager.Close(ctx))
	errs = append(errs, a.provider.Shutdown(ctx))
	errs = append(errs, a.logFile.Close())
	return errors.Join(errs...)
}
