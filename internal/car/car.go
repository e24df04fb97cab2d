// Package car is the interface between a car control program and the Alamak
// car model in a CoppeliaSim scene.
//
// Its public surface mirrors what a microcontroller on the real car offers:
// motor power, steering servo position and the line camera. Internally every
// call is translated into remote API commands against the scene. A Car is
// driven from a single control goroutine and is not safe for concurrent use.
package car

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

var (
	ErrAlreadyConnected = errors.New("car already connected")
	ErrNotConnected     = errors.New("car not connected to simulator")
	ErrStreamStart      = errors.New("unable to start vision sensor stream")
	ErrConnectionLost   = errors.New("connection to simulator lost")
	ErrCaptureTimeout   = errors.New("timeout waiting for camera image")
	ErrFrameSize        = errors.New("camera image shorter than sensor resolution")
	ErrFrameRelease     = errors.New("unable to release camera image")
	ErrShortBuffer      = errors.New("destination shorter than sensor resolution")
)

// InitError reports a failed Connect. Name is set when an object handle
// could not be resolved.
type InitError struct {
	Stage string
	Name  string
	Err   error
}

func (e *InitError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("car init %s %q: %v", e.Stage, e.Name, e.Err)
	}
	return fmt.Sprintf("car init %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

type handles struct {
	leftMotor    remoteapi.Handle
	rightMotor   remoteapi.Handle
	servo        remoteapi.Handle
	visionSensor remoteapi.Handle
}

// Car owns one session with the simulator.
type Car struct {
	cfg     Config
	dialer  remoteapi.Dialer
	logger  *slog.Logger
	metrics *metrics

	session   remoteapi.Session
	handles   handles
	failed    bool
	streaming bool
}

// New creates an unconnected car. A nil logger uses slog.Default().
func New(dialer remoteapi.Dialer, cfg Config, logger *slog.Logger) (*Car, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Car{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger.With("component", "car"),
		metrics: m,
	}, nil
}

// Config returns the car's configuration.
func (c *Car) Config() Config {
	return c.cfg
}

// Connect opens the session on the given port and resolves the scene objects.
// Any failure leaves the car unusable; a new Car must be created to retry.
func (c *Car) Connect(ctx context.Context, port int) error {
	if c.session != nil || c.failed {
		return ErrAlreadyConnected
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(port))
	c.logger.Info("Connecting to CoppeliaSim", "addr", addr)

	session, err := c.dialer.Dial(ctx, c.cfg.Host, port, remoteapi.DialOptions{
		Timeout:         c.cfg.ConnectTimeout,
		Retries:         c.cfg.Retries,
		BlockingTimeout: c.cfg.BlockingTimeout,
	})
	if err != nil {
		c.failed = true
		c.logger.Error("Unable to connect CoppeliaSim", "addr", addr, "error", err)
		return &InitError{Stage: "connect", Err: err}
	}

	objects := []struct {
		name string
		dst  *remoteapi.Handle
	}{
		{c.cfg.Objects.LeftMotor, &c.handles.leftMotor},
		{c.cfg.Objects.RightMotor, &c.handles.rightMotor},
		{c.cfg.Objects.Servo, &c.handles.servo},
		{c.cfg.Objects.VisionSensor, &c.handles.visionSensor},
	}
	for _, obj := range objects {
		h, err := session.ObjectHandle(ctx, obj.name)
		if err != nil {
			c.failed = true
			c.logger.Error("Unable to get handle", "name", obj.name, "error", err)
			_ = session.Close()
			return &InitError{Stage: "resolve", Name: obj.name, Err: err}
		}
		*obj.dst = h
	}

	c.session = session
	c.streaming = false
	c.logger.Info("Connected to CoppeliaSim", "addr", addr)
	return nil
}

// Close ends the session. It is safe to call more than once.
func (c *Car) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.failed = true
	return err
}
