// Command demo_car_gamepad drives the simulated Alamak car with a joystick
// and shows its line camera as a scrolling strip.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alamak-sim/copsimcar/internal/app"
	"github.com/alamak-sim/copsimcar/internal/drive"
	"github.com/alamak-sim/copsimcar/internal/gamepad"
)

const program = "demo_car_gamepad"

func main() {
	os.Exit(run())
}

func run() int {
	args, ok := app.ParseArgs(program, os.Args[1:], true, os.Stdout)
	if !ok {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{
		Program:   program,
		ConfigDir: args.ConfigDir,
		Port:      args.Port,
		Stdin:     os.Stdin,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	if err := a.Connect(ctx); err != nil {
		a.Logger.Error("Unable to connect to the simulator", "port", args.Port, "error", err)
		return 1
	}

	pad := gamepad.New(app.GamepadConfig(), a.Logger)
	if err := pad.Start(ctx); err != nil {
		a.Logger.Error("Unable to open the gamepad", "error", err)
		return 1
	}
	defer pad.Stop()

	var sink drive.Sink
	if !args.NoTrack {
		view, err := app.NewTrackview(a.Car.Config().Resolution)
		if err != nil {
			a.Logger.Error("Unable to start the track view", "error", err)
			return 1
		}
		if err := view.Start(ctx); err != nil {
			a.Logger.Error("Unable to start the track view", "error", err)
			return 1
		}
		defer view.Stop()
		sink = view
	}

	controller := &drive.GamepadController{Input: pad, Shaper: app.Shaper()}
	if err := a.Drive(ctx, controller, sink); err != nil {
		a.Logger.Error("Control loop failed", "error", err)
		return 1
	}
	return 0
}
