// Command demo_car_simple drives the simulated Alamak car in a fixed
// back-and-forth pattern, one command per camera frame.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alamak-sim/copsimcar/internal/app"
)

const program = "demo_car_simple"

func main() {
	os.Exit(run())
}

func run() int {
	args, ok := app.ParseArgs(program, os.Args[1:], false, os.Stdout)
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

	// frames are only waited for, not kept
	if err := a.Drive(ctx, app.Oscillator(), nil); err != nil {
		a.Logger.Error("Control loop failed", "error", err)
		return 1
	}
	return 0
}
