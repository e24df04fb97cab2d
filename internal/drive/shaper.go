// Package drive turns operator input into car commands and runs the control
// loop that paces itself on camera frames.
package drive

import (
	"math"

	"github.com/alamak-sim/copsimcar/internal/gamepad"
)

// Command is what the control loop sends to the car in one cycle.
type Command struct {
	Steer float64
	Left  float64
	Right float64
	// Reset restarts the car instead of driving.
	Reset bool
}

// Shaper maps thumbstick positions to a driving command.
type Shaper struct {
	// AxisSteps is the full scale of an axis.
	AxisSteps int
	// Deadzone is the axis magnitude at or below which input is ignored.
	Deadzone int
	// InnerWheelReduction is the share of power taken from the inner wheel at
	// full steering lock.
	InnerWheelReduction float64
}

// DefaultShaper returns the shaping used with the F710 gamepad.
func DefaultShaper() Shaper {
	return Shaper{
		AxisSteps:           gamepad.AxisSteps,
		Deadzone:            gamepad.AxisSteps / 1000,
		InnerWheelReduction: 0.8,
	}
}

func (s Shaper) axis(v int) float64 {
	if v > s.Deadzone || v < -s.Deadzone {
		return -float64(v) / float64(s.AxisSteps)
	}
	return 0
}

// Shape converts the axes into servo and motor power. Pushing the sticks
// forward or left gives positive values. Power is squared with its sign kept,
// and the wheel on the inside of the turn gets less of it.
func (s Shaper) Shape(steerAxis, speedAxis int) Command {
	servo := s.axis(steerAxis)
	pwm := s.axis(speedAxis)
	pwm *= math.Abs(pwm)

	left, right := pwm, pwm
	if servo > 0 {
		left *= 1 - math.Abs(servo)*s.InnerWheelReduction
	}
	if servo < 0 {
		right *= 1 - math.Abs(servo)*s.InnerWheelReduction
	}
	return Command{Steer: servo, Left: left, Right: right}
}

// Input is the operator's gamepad.
type Input interface {
	Snapshot() gamepad.Snapshot
	ConsumeReset() bool
}

// GamepadController drives the car from a gamepad.
type GamepadController struct {
	Input  Input
	Shaper Shaper
}

func (g *GamepadController) Next() Command {
	if g.Input.ConsumeReset() {
		return Command{Reset: true}
	}
	snap := g.Input.Snapshot()
	return g.Shaper.Shape(snap.SteerAxis, snap.SpeedAxis)
}
