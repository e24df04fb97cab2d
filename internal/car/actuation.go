package car

import (
	"errors"
	"fmt"
	"math"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

// Clamp limits v to the normalized range [-1, 1]. NaN is treated as the
// neutral value 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

// limit bounds v to [-max, max].
func limit(v, max float64) float64 {
	return math.Max(-max, math.Min(v, max))
}

// SteerAngle converts a normalized servo position to the joint angle in
// radians. Negative positions turn left. The angle never exceeds
// MaxSteerAngle.
func (c Config) SteerAngle(pos float64) float64 {
	return limit(Clamp(pos)*c.MaxSteerAngle, c.MaxSteerAngle)
}

// Torque converts a normalized motor power to torque in N·m, bounded by
// MaxTorque.
func (c Config) Torque(power float64) float64 {
	max := c.MaxTorque()
	return limit(Clamp(power)*max, max)
}

// WheelCommand is the velocity target and force limit for one rear motor.
type WheelCommand struct {
	Velocity float64
	Force    float64
}

// WheelCommand translates a signed torque into a motor command. The joint is
// torque driven, so the sign selects the direction of the maximum velocity
// and the magnitude becomes the force limit. Zero torque drives forward with
// no force.
func (c Config) WheelCommand(torque float64) WheelCommand {
	velocity := c.MaxAngularSpeed()
	if torque < 0 {
		return WheelCommand{Velocity: -velocity, Force: -torque}
	}
	return WheelCommand{Velocity: velocity, Force: torque}
}

// SetSteer sets the servo position in the range [-1, 1]; negative turns left.
// Out of range values are clamped. A rejected command is logged and the
// control program keeps running.
func (c *Car) SetSteer(pos float64) {
	if c.session == nil {
		c.logger.Warn("Steering ignored", "error", ErrNotConnected)
		return
	}
	angle := c.cfg.SteerAngle(pos)
	if err := c.session.SetTargetPosition(c.handles.servo, angle, remoteapi.OneShot); err != nil {
		c.metrics.actuatorFailed("servo")
		c.logger.Error("Unable to set servo position", "angle", angle, "error", err)
	}
}

// SetPower sets the power of the left and right rear motors in the range
// [-1, 1]. The right motor is mounted mirrored, so its torque is negated
// before the command is built. All four commands are sent even when one is
// rejected; the returned error joins every failure.
func (c *Car) SetPower(left, right float64) error {
	if c.session == nil {
		return ErrNotConnected
	}

	l := c.cfg.WheelCommand(c.cfg.Torque(left))
	r := c.cfg.WheelCommand(-c.cfg.Torque(right))

	var errs []error
	send := func(actuator string, err error) {
		if err != nil {
			c.metrics.actuatorFailed(actuator)
			errs = append(errs, fmt.Errorf("%s: %w", actuator, err))
		}
	}
	send("left_velocity", c.session.SetTargetVelocity(c.handles.leftMotor, l.Velocity, remoteapi.OneShot))
	send("left_force", c.session.SetForceLimit(c.handles.leftMotor, l.Force, remoteapi.OneShot))
	send("right_velocity", c.session.SetTargetVelocity(c.handles.rightMotor, r.Velocity, remoteapi.OneShot))
	send("right_force", c.session.SetForceLimit(c.handles.rightMotor, r.Force, remoteapi.OneShot))

	return errors.Join(errs...)
}
