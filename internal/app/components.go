package app

import (
	"fmt"
	"math"
	"os"

	"github.com/alamak-sim/copsimcar/internal/car"
	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/drive"
	"github.com/alamak-sim/copsimcar/internal/gamepad"
	"github.com/alamak-sim/copsimcar/internal/trackview"
)

// CarConfig builds the car model from the loaded configuration.
func CarConfig() car.Config {
	sim := config.GetSimConfig()
	c := config.GetCarConfig()
	capture := config.GetCaptureConfig()

	return car.Config{
		Host:            sim.Host,
		ConnectTimeout:  sim.ConnectTimeout,
		Retries:         sim.Retries,
		BlockingTimeout: sim.BlockingTimeout,
		Objects: car.ObjectNames{
			LeftMotor:    c.Objects.LeftMotor,
			RightMotor:   c.Objects.RightMotor,
			Servo:        c.Objects.Servo,
			VisionSensor: c.Objects.VisionSensor,
		},
		Resolution:     c.Resolution,
		MaxSteerAngle:  c.MaxSteerAngleDeg * math.Pi / 180,
		WheelDiameter:  c.WheelDiameter,
		MaxLinearSpeed: c.MaxLinearSpeed,
		RatedTorque:    c.RatedTorque,
		TorqueDivisor:  c.TorqueDivisor,
		CaptureBudget:  capture.Budget,
		PollInterval:   capture.PollInterval,
		ResetScript:    c.ResetScript,
		ResetFunction:  c.ResetFunction,
	}
}

// GamepadConfig builds the gamepad mapping from the loaded configuration.
func GamepadConfig() gamepad.Config {
	g := config.GetGamepadConfig()
	return gamepad.Config{
		Device:      g.Device,
		SteerAxis:   uint8(g.SteerAxis),
		SpeedAxis:   uint8(g.SpeedAxis),
		ResetButton: uint8(g.ResetButton),
	}
}

// Shaper builds the input shaping from the loaded configuration.
func Shaper() drive.Shaper {
	d := config.GetDriveConfig()
	s := drive.DefaultShaper()
	s.Deadzone = d.Deadzone
	s.InnerWheelReduction = d.InnerWheelReduction
	return s
}

// Oscillator builds the demo pattern from the loaded configuration.
func Oscillator() *drive.Oscillator {
	return drive.NewOscillator(config.GetDriveConfig().OscillatorPeriod)
}

// NewTrackview creates the camera strip view selected by the configuration.
// The terminal renderer draws to stdout.
func NewTrackview(width int) (*trackview.View, error) {
	cfg := config.GetTrackviewConfig()

	var renderer trackview.Renderer
	switch cfg.Renderer {
	case "terminal", "":
		t, err := trackview.NewTerminal(os.Stdout, cfg.Scale)
		if err != nil {
			return nil, err
		}
		renderer = t
	case "png":
		p, err := trackview.NewPNGFile(cfg.PNGPath)
		if err != nil {
			return nil, err
		}
		renderer = p
	default:
		return nil, fmt.Errorf("unknown track view renderer: %s", cfg.Renderer)
	}

	return trackview.New(width, cfg.Height, renderer, nil), nil
}
