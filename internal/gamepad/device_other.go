//go:build !linux

package gamepad

import (
	"errors"
	"runtime"
)

func openDevice(string) (device, error) {
	return nil, errors.New("joystick devices are not supported on " + runtime.GOOS)
}
