package car

import (
	"math"
	"time"
)

// Object names of the Alamak model in the CoppeliaSim scene.
const (
	ObjectLeftMotor    = "Motor_Left"
	ObjectRightMotor   = "Motor_Right"
	ObjectServo        = "Servo"
	ObjectVisionSensor = "Vision_Sensor"
)

// ObjectNames maps the car's actuators and sensor to scene object names.
type ObjectNames struct {
	LeftMotor    string
	RightMotor   string
	Servo        string
	VisionSensor string
}

// Config holds the physical model of the car and the session parameters.
type Config struct {
	Host            string
	ConnectTimeout  time.Duration
	Retries         int
	BlockingTimeout time.Duration

	Objects ObjectNames

	// Resolution is the number of samples in one line camera frame.
	Resolution int
	// MaxSteerAngle is the rotation of the virtual 5th wheel in radians.
	MaxSteerAngle float64
	// WheelDiameter in meters.
	WheelDiameter float64
	// MaxLinearSpeed in meters per second.
	MaxLinearSpeed float64
	// RatedTorque is the real torque on the rear wheels in N·m.
	RatedTorque float64
	// TorqueDivisor reduces RatedTorque for the model; full torque makes the
	// simulated car unrealistically fast.
	TorqueDivisor float64

	// CaptureBudget is the number of buffered reads before a capture times out.
	CaptureBudget int
	PollInterval  time.Duration

	ResetScript   string
	ResetFunction string
}

// DefaultConfig returns the Alamak car model as used for the NXP Cup scene.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		ConnectTimeout:  2000 * time.Millisecond,
		Retries:         5,
		BlockingTimeout: 5 * time.Second,
		Objects: ObjectNames{
			LeftMotor:    ObjectLeftMotor,
			RightMotor:   ObjectRightMotor,
			Servo:        ObjectServo,
			VisionSensor: ObjectVisionSensor,
		},
		Resolution:     128,
		MaxSteerAngle:  30 * math.Pi / 180,
		WheelDiameter:  0.064,
		MaxLinearSpeed: 1.2,
		RatedTorque:    0.1,
		TorqueDivisor:  3,
		CaptureBudget:  5000,
		PollInterval:   time.Millisecond,
		ResetScript:    "Board",
		ResetFunction:  "restart",
	}
}

// MaxTorque is the reduced torque used for the model.
func (c Config) MaxTorque() float64 {
	if c.TorqueDivisor <= 0 {
		return c.RatedTorque
	}
	return c.RatedTorque / c.TorqueDivisor
}

// MaxAngularSpeed converts the linear speed limit to a wheel rotation speed
// in degrees per second.
func (c Config) MaxAngularSpeed() float64 {
	return c.MaxLinearSpeed / (c.WheelDiameter * math.Pi) * 360
}
