package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"
)

// Args are the command line arguments shared by the car programs.
type Args struct {
	Port      int
	ConfigDir string
	NoTrack   bool
}

// ParseArgs parses "[-h] [--notrack] [--config DIR] port_number". The
// --notrack flag exists only when withTrack is set. On -h or a missing or
// invalid port the usage is written to out and ok is false; the program
// should then exit successfully.
func ParseArgs(program string, args []string, withTrack bool, out io.Writer) (parsed Args, ok bool) {
	fs := pflag.NewFlagSet(program, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&parsed.ConfigDir, "config", ".", "directory holding copsim_car.cfg.json")
	if withTrack {
		fs.BoolVar(&parsed.NoTrack, "notrack", false, "do not show the camera track view")
	}
	help := fs.BoolP("help", "h", false, "show this help")

	usage := func() {
		if withTrack {
			fmt.Fprintf(out, "Usage: %s [-h] [--notrack] [--config DIR] port_number\n", program)
		} else {
			fmt.Fprintf(out, "Usage: %s [-h] [--config DIR] port_number\n", program)
		}
		fmt.Fprintln(out, "  port_number  remote API port of the CoppeliaSim scene")
		fmt.Fprint(out, fs.FlagUsages())
	}

	// the single-dash spelling is accepted as well
	normalized := make([]string, len(args))
	for i, a := range args {
		if withTrack && a == "-notrack" {
			a = "--notrack"
		}
		normalized[i] = a
	}

	if err := fs.Parse(normalized); err != nil {
		fmt.Fprintln(out, err)
		usage()
		return parsed, false
	}
	if *help || fs.NArg() != 1 {
		usage()
		return parsed, false
	}

	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil || port < 1 || port > 65535 {
		fmt.Fprintf(out, "invalid port number %q\n", fs.Arg(0))
		usage()
		return parsed, false
	}
	parsed.Port = port
	return parsed, true
}
