package car

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
	"github.com/alamak-sim/copsimcar/internal/remoteapi/fake"
)

const testPort = 19997

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	return cfg
}

func newSession() *fake.Session {
	return fake.NewSession(ObjectLeftMotor, ObjectRightMotor, ObjectServo, ObjectVisionSensor)
}

func connectedCar(t *testing.T, s *fake.Session) (*Car, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := New(&fake.Dialer{Session: s}, testConfig(), logger)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), testPort))
	t.Cleanup(func() { _ = c.Close() })
	return c, &logs
}

func TestConfig_Derived(t *testing.T) {
	cfg := DefaultConfig()

	assert.InDelta(t, 0.5236, cfg.MaxSteerAngle, 1e-4)
	assert.InDelta(t, 0.1/3, cfg.MaxTorque(), 1e-12)
	assert.InDelta(t, 1.2/(0.064*math.Pi)*360, cfg.MaxAngularSpeed(), 1e-9)
	assert.Equal(t, 128, cfg.Resolution)
	assert.Equal(t, 5000, cfg.CaptureBudget)
}

func TestClamp(t *testing.T) {
	cfg := DefaultConfig()

	for _, x := range []float64{-1, -0.75, -0.1, 0, 0.3, 0.999, 1} {
		assert.InDelta(t, x*cfg.MaxSteerAngle, cfg.SteerAngle(x), 1e-12, "x=%v", x)
		assert.InDelta(t, x*cfg.MaxTorque(), cfg.Torque(x), 1e-12, "x=%v", x)
	}

	for _, x := range []float64{-100, -1.0001, 1.0001, 2, math.Inf(1)} {
		angle := cfg.SteerAngle(x)
		assert.LessOrEqual(t, math.Abs(angle), cfg.MaxSteerAngle)
		assert.InDelta(t, math.Copysign(cfg.MaxSteerAngle, x), angle, 1e-12)
		assert.InDelta(t, math.Copysign(cfg.MaxTorque(), x), cfg.Torque(x), 1e-12)
	}

	assert.Zero(t, Clamp(math.NaN()))
	assert.Zero(t, cfg.SteerAngle(math.NaN()))
	assert.Zero(t, cfg.Torque(math.NaN()))
}

func TestActuators_NaNIsNeutral(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	cfg := c.Config()

	c.SetSteer(math.NaN())
	require.NoError(t, c.SetPower(math.NaN(), 0.5))

	cmds := s.Commands()
	require.Len(t, cmds, 5)
	for _, cmd := range cmds {
		assert.False(t, math.IsNaN(cmd.Value), "%s h=%d", cmd.Func, cmd.Handle)
	}
	assert.Zero(t, cmds[0].Value)
	assert.Equal(t, fake.Command{Func: fake.FuncForceLimit, Handle: 1, Value: 0, Mode: remoteapi.OneShot}, cmds[2])
	assert.LessOrEqual(t, cmds[4].Value, cfg.MaxTorque())
	assert.InDelta(t, cfg.MaxTorque()/2, cmds[4].Value, 1e-12)
}

func TestWheelCommand(t *testing.T) {
	cfg := DefaultConfig()
	max := cfg.MaxAngularSpeed()

	tests := []struct {
		name   string
		torque float64
		want   WheelCommand
	}{
		{"forward", 0.02, WheelCommand{Velocity: max, Force: 0.02}},
		{"backward", -0.02, WheelCommand{Velocity: -max, Force: 0.02}},
		{"tiny forward", 1e-9, WheelCommand{Velocity: max, Force: 1e-9}},
		{"zero", 0, WheelCommand{Velocity: max, Force: 0}},
		{"negative zero", math.Copysign(0, -1), WheelCommand{Velocity: max, Force: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.WheelCommand(tt.torque)
			assert.Equal(t, tt.want.Velocity, got.Velocity)
			assert.InDelta(t, tt.want.Force, got.Force, 1e-15)
			assert.GreaterOrEqual(t, got.Force, 0.0)
		})
	}
}

func TestConnect_ResolvesHandlesInOrder(t *testing.T) {
	s := newSession()
	d := &fake.Dialer{Session: s}
	c, err := New(d, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background(), testPort))

	assert.Equal(t, []string{"Motor_Left", "Motor_Right", "Servo", "Vision_Sensor"}, s.Resolved())
	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "127.0.0.1", calls[0].Host)
	assert.Equal(t, testPort, calls[0].Port)
	assert.Equal(t, 2000*time.Millisecond, calls[0].Opts.Timeout)
	assert.Equal(t, 5, calls[0].Opts.Retries)

	assert.ErrorIs(t, c.Connect(context.Background(), testPort), ErrAlreadyConnected)
}

func TestConnect_DialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	c, err := New(&fake.Dialer{Err: dialErr}, testConfig(), nil)
	require.NoError(t, err)

	err = c.Connect(context.Background(), testPort)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "connect", initErr.Stage)
	assert.ErrorIs(t, err, dialErr)

	// the car stays unusable
	assert.ErrorIs(t, c.Connect(context.Background(), testPort), ErrAlreadyConnected)
	assert.ErrorIs(t, c.SetPower(0.5, 0.5), ErrNotConnected)
}

func TestConnect_MissingObject(t *testing.T) {
	s := fake.NewSession(ObjectLeftMotor, ObjectRightMotor, ObjectVisionSensor)
	c, err := New(&fake.Dialer{Session: s}, testConfig(), nil)
	require.NoError(t, err)

	err = c.Connect(context.Background(), testPort)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "resolve", initErr.Stage)
	assert.Equal(t, ObjectServo, initErr.Name)
	assert.Equal(t, remoteapi.ReturnRemoteError, remoteapi.CodeOf(err))
	assert.True(t, s.Closed())
	assert.Equal(t, []string{"Motor_Left", "Motor_Right", "Servo"}, s.Resolved())
}

func TestSetSteer_Saturates(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	max := c.Config().MaxSteerAngle

	c.SetSteer(2.0)
	c.SetSteer(-2.0)
	c.SetSteer(-0.5)

	cmds := s.Commands()
	require.Len(t, cmds, 3)
	for _, cmd := range cmds {
		assert.Equal(t, fake.FuncTargetPosition, cmd.Func)
		assert.Equal(t, remoteapi.Handle(3), cmd.Handle)
		assert.Equal(t, remoteapi.OneShot, cmd.Mode)
	}
	assert.Equal(t, max, cmds[0].Value)
	assert.Equal(t, -max, cmds[1].Value)
	assert.InDelta(t, -max/2, cmds[2].Value, 1e-12)
}

func TestSetSteer_FailureIsLogged(t *testing.T) {
	s := newSession()
	c, logs := connectedCar(t, s)
	s.FailWith(fake.FuncTargetPosition, remoteapi.ReturnLocalError.Err(fake.FuncTargetPosition))

	c.SetSteer(0.2)

	assert.Contains(t, logs.String(), "Unable to set servo position")
}

func TestSetPower_FullForward(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	cfg := c.Config()

	require.NoError(t, c.SetPower(1.0, 1.0))

	cmds := s.Commands()
	require.Len(t, cmds, 4)
	assert.Equal(t, fake.Command{Func: fake.FuncTargetVelocity, Handle: 1, Value: cfg.MaxAngularSpeed(), Mode: remoteapi.OneShot}, cmds[0])
	assert.Equal(t, fake.Command{Func: fake.FuncForceLimit, Handle: 1, Value: cfg.MaxTorque(), Mode: remoteapi.OneShot}, cmds[1])
	assert.Equal(t, fake.Command{Func: fake.FuncTargetVelocity, Handle: 2, Value: -cfg.MaxAngularSpeed(), Mode: remoteapi.OneShot}, cmds[2])
	assert.Equal(t, fake.Command{Func: fake.FuncForceLimit, Handle: 2, Value: cfg.MaxTorque(), Mode: remoteapi.OneShot}, cmds[3])
}

func TestSetPower_SignConvention(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	max := c.Config().MaxAngularSpeed()

	tests := []struct {
		left, right           float64
		leftVel, rightVel     float64
		leftForce, rightForce float64
	}{
		{-0.5, -0.5, -max, max, 0.5, 0.5},
		{0.25, -3, max, max, 0.25, 1},
		{0.01, 0.9, max, -max, 0.01, 0.9},
	}

	for _, tt := range tests {
		s.ResetCommands()
		require.NoError(t, c.SetPower(tt.left, tt.right))

		cmds := s.Commands()
		require.Len(t, cmds, 4)
		assert.Equal(t, tt.leftVel, cmds[0].Value)
		assert.InDelta(t, tt.leftForce*c.Config().MaxTorque(), cmds[1].Value, 1e-12)
		assert.Equal(t, tt.rightVel, cmds[2].Value)
		assert.InDelta(t, tt.rightForce*c.Config().MaxTorque(), cmds[3].Value, 1e-12)
	}
}

func TestSetPower_AllCommandsAttempted(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	s.FailWith(fake.FuncTargetVelocity, remoteapi.ReturnLocalError.Err(fake.FuncTargetVelocity))

	err := c.SetPower(0.3, 0.3)

	require.Error(t, err)
	assert.Len(t, s.Commands(), 4)
	assert.Contains(t, err.Error(), "left_velocity")
	assert.Contains(t, err.Error(), "right_velocity")
	assert.NotContains(t, err.Error(), "force")
}

func TestNeutralCommands_Idempotent(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)

	c.SetSteer(0)
	require.NoError(t, c.SetPower(0, 0))
	first := s.Commands()

	s.ResetCommands()
	c.SetSteer(0)
	require.NoError(t, c.SetPower(0, 0))
	second := s.Commands()

	require.Len(t, first, 5)
	assert.Equal(t, first, second)
	assert.Equal(t, c.Config().MaxAngularSpeed(), first[1].Value)
	assert.Equal(t, c.Config().MaxAngularSpeed(), first[3].Value)
}

func TestCaptureFrame_Delivers(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	frame := bytes.Repeat([]byte{0x7f}, 128)
	s.QueueFrame(frame, 3)

	dst := make([]byte, 128)
	require.NoError(t, c.CaptureFrame(context.Background(), dst))

	assert.Equal(t, frame, dst)
	stream, reads, drops := s.Counts()
	assert.Equal(t, 1, stream)
	assert.Equal(t, 4, reads)
	assert.Equal(t, 1, drops)

	// streaming bootstrap happens once per session
	require.NoError(t, c.CaptureFrame(context.Background(), nil))
	stream, _, drops = s.Counts()
	assert.Equal(t, 1, stream)
	assert.Equal(t, 2, drops)
}

func TestCaptureFrame_ExactBudget(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)

	err := c.CaptureFrame(context.Background(), make([]byte, 128))

	assert.ErrorIs(t, err, ErrCaptureTimeout)
	_, reads, drops := s.Counts()
	assert.Equal(t, c.Config().CaptureBudget, reads)
	assert.Zero(t, drops)
}

func TestCaptureFrame_NotLive(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	s.SetLive(false)

	err := c.CaptureFrame(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNotConnected)
	stream, reads, _ := s.Counts()
	assert.Zero(t, stream)
	assert.Zero(t, reads)
}

func TestCaptureFrame_ConnectionLost(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	s.DropConnectionAfter(10)

	err := c.CaptureFrame(context.Background(), nil)

	assert.ErrorIs(t, err, ErrConnectionLost)
	_, reads, _ := s.Counts()
	assert.Equal(t, 10, reads)
}

func TestCaptureFrame_StreamStartFailure(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	s.FailWith(fake.FuncStartStream, remoteapi.ReturnRemoteError.Err(fake.FuncStartStream))

	err := c.CaptureFrame(context.Background(), nil)

	assert.ErrorIs(t, err, ErrStreamStart)
	_, reads, _ := s.Counts()
	assert.Zero(t, reads)
}

func TestCaptureFrame_ReleaseFailureAfterCopy(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	frame := make([]byte, 128)
	for i := range frame {
		frame[i] = byte(i)
	}
	s.QueueFrame(frame, 0)
	s.FailWith(fake.FuncDropFrame, remoteapi.ReturnLocalError.Err(fake.FuncDropFrame))

	dst := make([]byte, 128)
	err := c.CaptureFrame(context.Background(), dst)

	// the frame is reported as failed even though it was delivered
	assert.ErrorIs(t, err, ErrFrameRelease)
	assert.Equal(t, frame, dst)
}

func TestCaptureFrame_ShortBuffers(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)

	assert.ErrorIs(t, c.CaptureFrame(context.Background(), make([]byte, 10)), ErrShortBuffer)
	stream, _, _ := s.Counts()
	assert.Zero(t, stream)

	s.QueueFrame(make([]byte, 64), 0)
	assert.ErrorIs(t, c.CaptureFrame(context.Background(), make([]byte, 128)), ErrFrameSize)
	_, _, drops := s.Counts()
	assert.Zero(t, drops)
}

func TestCaptureFrame_Cancelled(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)
	c.cfg.PollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.CaptureFrame(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	_, reads, _ := s.Counts()
	assert.Equal(t, 1, reads)
}

func TestReset_ScriptFailure(t *testing.T) {
	s := newSession()
	c, logs := connectedCar(t, s)
	s.FailWith(fake.FuncCallScript, remoteapi.ReturnRemoteError.Err(fake.FuncCallScript))

	c.Reset(context.Background())

	cmds := s.Commands()
	require.Len(t, cmds, 5)
	assert.Equal(t, fake.FuncTargetPosition, cmds[0].Func)
	assert.Equal(t, 0.0, cmds[0].Value)
	assert.Equal(t, fake.FuncForceLimit, cmds[2].Func)
	assert.Equal(t, 0.0, cmds[2].Value)
	assert.Equal(t, []fake.ScriptCall{{Script: "Board", Function: "restart"}}, s.Scripts())
	assert.Contains(t, logs.String(), "Remote function call failed")
}

func TestClose_Idempotent(t *testing.T) {
	s := newSession()
	c, _ := connectedCar(t, s)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, s.Closed())
	assert.ErrorIs(t, c.CaptureFrame(context.Background(), nil), ErrNotConnected)
}
