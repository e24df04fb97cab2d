// Package fake provides an in-memory remoteapi.Session for tests. It records
// every command, serves scripted frames and injects failures on demand.
package fake

import (
	"context"
	"sync"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

// Function names used by Command.Func and Session.FailWith.
const (
	FuncObjectHandle   = "getObjectHandle"
	FuncTargetPosition = "setJointTargetPosition"
	FuncTargetVelocity = "setJointTargetVelocity"
	FuncForceLimit     = "setJointForce"
	FuncStartStream    = "startVisionSensorStream"
	FuncBufferedFrame  = "getBufferedVisionSensorImage"
	FuncDropFrame      = "dropBufferedVisionSensorImage"
	FuncCallScript     = "callScriptFunction"
)

// Command is one recorded actuator command.
type Command struct {
	Func   string
	Handle remoteapi.Handle
	Value  float64
	Mode   remoteapi.OpMode
}

// ScriptCall is one recorded script invocation.
type ScriptCall struct {
	Script   string
	Function string
}

// Session is a scripted remoteapi.Session.
type Session struct {
	mu sync.Mutex

	handles  map[string]remoteapi.Handle
	failures map[string]error
	live     bool
	closed   bool

	// frame served once pendingReads novalue replies have been consumed
	frame        []byte
	pendingReads int
	hasFrame     bool
	// liveAfterReads turns liveness off after this many buffered reads (-1 = never)
	liveAfterReads int

	commands    []Command
	scripts     []ScriptCall
	resolved    []string
	streamCalls int
	readCalls   int
	dropCalls   int
}

// NewSession returns a live session that resolves the given names to
// consecutive handles starting at 1.
func NewSession(names ...string) *Session {
	s := &Session{
		handles:        make(map[string]remoteapi.Handle),
		failures:       make(map[string]error),
		live:           true,
		liveAfterReads: -1,
	}
	for i, n := range names {
		s.handles[n] = remoteapi.Handle(i + 1)
	}
	return s
}

// FailWith makes every call of fn return err. A nil err clears the failure.
func (s *Session) FailWith(fn string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, fn)
		return
	}
	s.failures[fn] = err
}

// SetLive sets the liveness reported by ConnectionLive.
func (s *Session) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// DropConnectionAfter reports the connection as lost once n buffered reads
// have been made.
func (s *Session) DropConnectionAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveAfterReads = n
}

// QueueFrame makes a frame available after `after` novalue reads.
func (s *Session) QueueFrame(frame []byte, after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = append([]byte(nil), frame...)
	s.pendingReads = after
	s.hasFrame = true
}

func (s *Session) fail(fn string) error {
	if s.closed {
		return remoteapi.ReturnLocalError.Err(fn)
	}
	return s.failures[fn]
}

func (s *Session) ObjectHandle(_ context.Context, name string) (remoteapi.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, name)
	if err := s.fail(FuncObjectHandle); err != nil {
		return remoteapi.InvalidHandle, err
	}
	h, ok := s.handles[name]
	if !ok {
		return remoteapi.InvalidHandle, remoteapi.ReturnRemoteError.Err(FuncObjectHandle)
	}
	return h, nil
}

func (s *Session) record(fn string, h remoteapi.Handle, v float64, mode remoteapi.OpMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Func: fn, Handle: h, Value: v, Mode: mode})
	return s.fail(fn)
}

func (s *Session) SetTargetPosition(h remoteapi.Handle, angle float64, mode remoteapi.OpMode) error {
	return s.record(FuncTargetPosition, h, angle, mode)
}

func (s *Session) SetTargetVelocity(h remoteapi.Handle, velocity float64, mode remoteapi.OpMode) error {
	return s.record(FuncTargetVelocity, h, velocity, mode)
}

func (s *Session) SetForceLimit(h remoteapi.Handle, force float64, mode remoteapi.OpMode) error {
	return s.record(FuncForceLimit, h, force, mode)
}

func (s *Session) StartSensorStream(remoteapi.Handle, int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamCalls++
	if err := s.fail(FuncStartStream); err != nil {
		return err
	}
	if !s.hasFrame {
		return remoteapi.ReturnNoValue.Err(FuncStartStream)
	}
	return nil
}

func (s *Session) BufferedSensorFrame(remoteapi.Handle, int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readCalls++
	if s.liveAfterReads >= 0 && s.readCalls >= s.liveAfterReads {
		s.live = false
	}
	if err := s.fail(FuncBufferedFrame); err != nil {
		return nil, err
	}
	if !s.hasFrame || s.pendingReads > 0 {
		if s.pendingReads > 0 {
			s.pendingReads--
		}
		return nil, remoteapi.ReturnNoValue.Err(FuncBufferedFrame)
	}
	return append([]byte(nil), s.frame...), nil
}

func (s *Session) DropBufferedFrame(remoteapi.Handle, int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropCalls++
	return s.fail(FuncDropFrame)
}

func (s *Session) CallScriptFunction(_ context.Context, script, function string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, ScriptCall{Script: script, Function: function})
	return s.fail(FuncCallScript)
}

func (s *Session) ConnectionLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live && !s.closed
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Commands returns a copy of the recorded actuator commands.
func (s *Session) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// ResetCommands forgets the recorded actuator commands.
func (s *Session) ResetCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// Scripts returns the recorded script calls.
func (s *Session) Scripts() []ScriptCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScriptCall(nil), s.scripts...)
}

// Resolved returns the object names looked up, in order.
func (s *Session) Resolved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resolved...)
}

// Counts reports how often the streaming calls were made.
func (s *Session) Counts() (stream, reads, drops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCalls, s.readCalls, s.dropCalls
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dialer hands out a prepared Session, or fails with Err.
type Dialer struct {
	Session *Session
	Err     error

	mu    sync.Mutex
	calls []DialCall
}

// DialCall records the arguments of one Dial.
type DialCall struct {
	Host string
	Port int
	Opts remoteapi.DialOptions
}

func (d *Dialer) Dial(_ context.Context, host string, port int, opts remoteapi.DialOptions) (remoteapi.Session, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DialCall{Host: host, Port: port, Opts: opts})
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}

// Calls returns the recorded Dial calls.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DialCall(nil), d.calls...)
}

var (
	_ remoteapi.Session = (*Session)(nil)
	_ remoteapi.Dialer  = (*Dialer)(nil)
)
