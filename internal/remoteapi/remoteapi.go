// Package remoteapi describes the session surface the car bridge needs from a
// CoppeliaSim remote API server. Concrete transports live in sub-packages.
package remoteapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Handle identifies a named object inside the remote scene.
type Handle int32

// InvalidHandle is returned alongside errors from ObjectHandle.
const InvalidHandle Handle = -1

// OpMode selects how a command is delivered to the simulator.
type OpMode int

const (
	// OneShot sends the command without waiting for a reply.
	OneShot OpMode = iota
	// Blocking sends the command and waits for the reply.
	Blocking
)

func (m OpMode) String() string {
	switch m {
	case OneShot:
		return "oneshot"
	case Blocking:
		return "blocking"
	default:
		return fmt.Sprintf("opmode(%d)", int(m))
	}
}

// ReturnCode is the bit set reported by the remote API for every call.
type ReturnCode int

const (
	ReturnOK              ReturnCode = 0
	ReturnNoValue         ReturnCode = 1 << 0
	ReturnTimeout         ReturnCode = 1 << 1
	ReturnIllegalOpMode   ReturnCode = 1 << 2
	ReturnRemoteError     ReturnCode = 1 << 3
	ReturnSplitProgress   ReturnCode = 1 << 4
	ReturnLocalError      ReturnCode = 1 << 5
	ReturnInitializeError ReturnCode = 1 << 6
)

var returnFlagNames = []struct {
	code ReturnCode
	name string
}{
	{ReturnNoValue, "novalue"},
	{ReturnTimeout, "timeout"},
	{ReturnIllegalOpMode, "illegal_opmode"},
	{ReturnRemoteError, "remote_error"},
	{ReturnSplitProgress, "split_progress"},
	{ReturnLocalError, "local_error"},
	{ReturnInitializeError, "initialize_error"},
}

func (c ReturnCode) String() string {
	if c == ReturnOK {
		return "ok"
	}
	var names []string
	for _, f := range returnFlagNames {
		if c&f.code != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return strings.Join(names, "|")
}

// Err converts a return code into an error for the named remote function.
// ReturnOK yields nil.
func (c ReturnCode) Err(fn string) error {
	if c == ReturnOK {
		return nil
	}
	return &StatusError{Func: fn, Code: c}
}

// ErrNoValue matches any StatusError carrying the novalue flag.
var ErrNoValue = errors.New("remote api: no value")

// ErrClosed is returned by sessions that have been closed locally.
var ErrClosed = errors.New("remote api: session closed")

// StatusError reports a non-ok return code from a remote function.
type StatusError struct {
	Func string
	Code ReturnCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote api %s: %s", e.Func, e.Code)
}

// Is lets errors.Is(err, ErrNoValue) match novalue replies.
func (e *StatusError) Is(target error) bool {
	return target == ErrNoValue && e.Code&ReturnNoValue != 0
}

// CodeOf extracts the return code carried by err. A nil error is ReturnOK and
// errors that did not come from the remote side are reported as local errors.
func CodeOf(err error) ReturnCode {
	if err == nil {
		return ReturnOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return ReturnLocalError
}

// DialOptions configure a new session.
type DialOptions struct {
	// Timeout bounds each connection attempt.
	Timeout time.Duration
	// Retries is the number of connection attempts before giving up.
	Retries int
	// BlockingTimeout bounds every Blocking call made on the session.
	BlockingTimeout time.Duration
}

// Dialer opens sessions against a simulator.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, opts DialOptions) (Session, error)
}

// Session is a live connection to the simulator. Implementations are not
// required to be safe for concurrent use by multiple control goroutines.
type Session interface {
	// ObjectHandle resolves a named scene object. It blocks for one round trip.
	ObjectHandle(ctx context.Context, name string) (Handle, error)

	SetTargetPosition(h Handle, angle float64, mode OpMode) error
	SetTargetVelocity(h Handle, velocity float64, mode OpMode) error
	SetForceLimit(h Handle, force float64, mode OpMode) error

	// StartSensorStream asks the simulator to stream images of the sensor.
	// A novalue reply is normal: nothing has been streamed yet.
	StartSensorStream(h Handle, resolution int) error
	// BufferedSensorFrame returns the buffered image, or ErrNoValue when none
	// has arrived since the last drop.
	BufferedSensorFrame(h Handle, resolution int) ([]byte, error)
	// DropBufferedFrame removes the buffered image so the next read waits for
	// a fresh one.
	DropBufferedFrame(h Handle, resolution int) error

	// CallScriptFunction invokes a function without arguments in a scene
	// script and waits for it to return.
	CallScriptFunction(ctx context.Context, script, function string) error

	ConnectionLive() bool
	Close() error
}
