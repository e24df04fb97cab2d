// Package gamepad keeps the latest thumbstick positions and the reset button
// state of a Linux joystick device (tested with a Logitech F710).
package gamepad

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultDevice is the first joystick of the Linux joystick API.
	DefaultDevice = "/dev/input/js0"

	// AxisSteps is the range of an axis in either direction.
	AxisSteps = 32767

	DefaultSteerAxis   = 3
	DefaultSpeedAxis   = 1
	DefaultResetButton = 5

	// PollTimeout bounds how long Run waits for input before checking for
	// cancellation.
	PollTimeout = 10 * time.Millisecond
)

// Event types of struct js_event. Synthetic init events have 0x80 or'ed in
// and are ignored.
const (
	EventButton uint8 = 0x01
	EventAxis   uint8 = 0x02
)

// EventSize is the size of struct js_event on the wire.
const EventSize = 8

// Event is one joystick event.
type Event struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

// DecodeEvent reads one event from an 8 byte native (little endian) record.
func DecodeEvent(b []byte) (Event, error) {
	if len(b) < EventSize {
		return Event{}, fmt.Errorf("joystick event: need %d bytes, got %d", EventSize, len(b))
	}
	return Event{
		Time:   binary.LittleEndian.Uint32(b[0:4]),
		Value:  int16(binary.LittleEndian.Uint16(b[4:6])),
		Type:   b[6],
		Number: b[7],
	}, nil
}

// Encode writes the event in the wire layout.
func (e Event) Encode() []byte {
	b := make([]byte, EventSize)
	binary.LittleEndian.PutUint32(b[0:4], e.Time)
	binary.LittleEndian.PutUint16(b[4:6], uint16(e.Value))
	b[6] = e.Type
	b[7] = e.Number
	return b
}

// Snapshot is the gamepad state at one instant. Fields are read
// independently, so a snapshot may mix values from consecutive events.
type Snapshot struct {
	SteerAxis int
	SpeedAxis int
	Reset     bool
	NewData   bool
}

// Config selects the device and the mapping of axes and buttons.
type Config struct {
	Device      string
	SteerAxis   uint8
	SpeedAxis   uint8
	ResetButton uint8
}

// DefaultConfig returns the F710 mapping.
func DefaultConfig() Config {
	return Config{
		Device:      DefaultDevice,
		SteerAxis:   DefaultSteerAxis,
		SpeedAxis:   DefaultSpeedAxis,
		ResetButton: DefaultResetButton,
	}
}

// ErrStarted is returned by Start on a reader that is already running.
var ErrStarted = errors.New("gamepad already started")

// device is an opened joystick.
type device interface {
	// wait reports whether input is ready within timeout.
	wait(timeout time.Duration) (bool, error)
	read(p []byte) (int, error)
	close() error
}

// Reader updates a snapshot from joystick events in a background goroutine.
type Reader struct {
	cfg    Config
	logger *slog.Logger

	steer   atomic.Int32
	speed   atomic.Int32
	reset   atomic.Bool
	newData atomic.Bool

	mu     sync.Mutex
	dev    device
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a reader. Nothing is opened until Start.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	return &Reader{cfg: cfg, logger: logger.With("component", "gamepad")}
}

// Snapshot returns the current state.
func (r *Reader) Snapshot() Snapshot {
	return Snapshot{
		SteerAxis: int(r.steer.Load()),
		SpeedAxis: int(r.speed.Load()),
		Reset:     r.reset.Load(),
		NewData:   r.newData.Load(),
	}
}

// ConsumeReset clears the reset request and reports whether it was set.
func (r *Reader) ConsumeReset() bool {
	return r.reset.Swap(false)
}

// Apply folds one event into the snapshot.
func (r *Reader) Apply(e Event) {
	changed := false
	switch e.Type {
	case EventAxis:
		if e.Number == r.cfg.SteerAxis {
			r.steer.Store(int32(e.Value))
			changed = true
		}
		if e.Number == r.cfg.SpeedAxis {
			r.speed.Store(int32(e.Value))
			changed = true
		}
	case EventButton:
		if e.Number == r.cfg.ResetButton && e.Value == 1 {
			r.reset.Store(true)
			changed = true
		}
	}
	r.newData.Store(changed)
}

// Start opens the device and runs the reader until ctx is cancelled or Stop
// is called. The snapshot starts zeroed.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev != nil {
		return ErrStarted
	}

	dev, err := openDevice(r.cfg.Device)
	if err != nil {
		return fmt.Errorf("opening gamepad %s: %w", r.cfg.Device, err)
	}
	r.startDevice(ctx, dev)
	return nil
}

func (r *Reader) startDevice(ctx context.Context, dev device) {
	r.steer.Store(0)
	r.speed.Store(0)
	r.reset.Store(false)
	r.newData.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	r.dev = dev
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		if err := r.run(ctx, dev); err != nil {
			r.logger.Error("Gamepad reader stopped", "error", err)
		}
		r.logger.Info("Gamepad thread finished")
	}()
}

// run reads events until ctx is cancelled or the device fails.
func (r *Reader) run(ctx context.Context, dev device) error {
	buf := make([]byte, EventSize*16)
	pending := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		ready, err := dev.wait(PollTimeout)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if !ready {
			continue
		}

		n, err := dev.read(buf[pending:])
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return errors.New("device closed")
		}
		pending += n

		off := 0
		for ; pending-off >= EventSize; off += EventSize {
			e, _ := DecodeEvent(buf[off : off+EventSize])
			r.Apply(e)
		}
		pending = copy(buf, buf[off:pending])
	}
}

// Stop cancels the reader, waits for it and closes the device.
func (r *Reader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		return nil
	}

	r.cancel()
	<-r.done
	err := r.dev.close()
	r.dev = nil
	return err
}

// Done is closed when the reader goroutine exits. It is nil before Start.
func (r *Reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
