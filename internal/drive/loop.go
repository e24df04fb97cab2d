package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/alamak-sim/copsimcar/internal/drive"

// Vehicle is the car as seen by the control loop.
type Vehicle interface {
	SetSteer(pos float64)
	SetPower(left, right float64) error
	CaptureFrame(ctx context.Context, dst []byte) error
	Reset(ctx context.Context)
}

// Controller decides the command for the next cycle.
type Controller interface {
	Next() Command
}

// Sink receives every captured frame.
type Sink interface {
	AppendRow(row []byte)
}

// EventKind names a notable loop event.
type EventKind string

const (
	EventReset           EventKind = "reset"
	EventCaptureFailure  EventKind = "capture_failure"
	EventActuatorFailure EventKind = "actuator_failure"
	EventQuit            EventKind = "quit"
)

// CycleReport describes one completed cycle.
type CycleReport struct {
	Cycle   int64
	Time    time.Time
	Command Command
	Capture time.Duration
}

// Observer is told about every cycle and event. Implementations must not
// block the loop for long.
type Observer interface {
	Cycle(ctx context.Context, r CycleReport)
	Event(ctx context.Context, kind EventKind, detail string)
}

// LoopConfig wires a Loop.
type LoopConfig struct {
	Vehicle    Vehicle
	Controller Controller
	// Sink is optional. Without a sink frames are only waited for.
	Sink     Sink
	Observer Observer
	// Resolution is the frame size requested from the vehicle.
	Resolution int
	Logger     *slog.Logger
}

// Loop runs capture, then command, once per camera frame.
type Loop struct {
	cfg    LoopConfig
	logger *slog.Logger
	stats  Stats
	frame  []byte

	resetRequested atomic.Bool
	cycles         metric.Int64Counter
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Vehicle == nil || cfg.Controller == nil {
		return nil, errors.New("drive loop needs a vehicle and a controller")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cycles, err := otel.Meter(instrumentationName).Int64Counter(
		"drive.cycles",
		metric.WithDescription("Completed control cycles"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cycles counter: %w", err)
	}

	l := &Loop{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "drive"),
		cycles: cycles,
	}
	if cfg.Sink != nil {
		l.frame = make([]byte, cfg.Resolution)
	}
	return l, nil
}

// RequestReset makes the next cycle restart the car. It is safe to call from
// any goroutine.
func (l *Loop) RequestReset() {
	l.resetRequested.Store(true)
}

// Stats returns the loop counters.
func (l *Loop) Stats() StatsSnapshot {
	return l.stats.Snapshot()
}

// Run drives until ctx is cancelled, which returns nil, or a frame cannot be
// captured, which returns the capture error. Rejected actuator commands are
// logged and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	l.stats.start(time.Now())

	for {
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		if err := l.cfg.Vehicle.CaptureFrame(ctx, l.frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Error("Unable to get image", "error", err)
			l.observeEvent(ctx, EventCaptureFailure, err.Error())
			return fmt.Errorf("capturing frame: %w", err)
		}
		captured := time.Since(started)
		l.stats.captureNanos.Store(int64(captured))

		if l.cfg.Sink != nil {
			l.cfg.Sink.AppendRow(l.frame)
		}

		cmd := l.cfg.Controller.Next()
		if l.resetRequested.Swap(false) {
			cmd = Command{Reset: true}
		}
		if cmd.Reset {
			l.cfg.Vehicle.Reset(ctx)
			l.stats.resets.Add(1)
			l.observeEvent(ctx, EventReset, "")
			continue
		}

		l.cfg.Vehicle.SetSteer(cmd.Steer)
		if err := l.cfg.Vehicle.SetPower(cmd.Left, cmd.Right); err != nil {
			l.stats.actuatorFailures.Add(1)
			l.logger.Warn("Motor command rejected", "error", err)
			l.observeEvent(ctx, EventActuatorFailure, err.Error())
		}

		n := l.stats.cycles.Add(1)
		l.cycles.Add(ctx, 1)
		if l.cfg.Observer != nil {
			l.cfg.Observer.Cycle(ctx, CycleReport{
				Cycle:   n,
				Time:    started,
				Command: cmd,
				Capture: captured,
			})
		}
	}
}

func (l *Loop) observeEvent(ctx context.Context, kind EventKind, detail string) {
	if l.cfg.Observer != nil {
		l.cfg.Observer.Event(ctx, kind, detail)
	}
}
