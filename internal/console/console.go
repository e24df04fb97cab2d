// Package console reads operator commands from a line-oriented input, such
// as stdin, and dispatches them.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alamak-sim/copsimcar/internal/dispatcher"
	"github.com/alamak-sim/copsimcar/internal/drive"
)

// Controls are the program actions reachable from the console. Nil actions
// are not registered.
type Controls struct {
	Quit   func()
	Reset  func()
	Status func() drive.StatsSnapshot
}

// Register adds the console commands to d.
func Register(d *dispatcher.Dispatcher, c Controls) {
	if c.Quit != nil {
		d.Register("quit", func(dispatcher.Event) (any, error) {
			c.Quit()
			return "stopping", nil
		}, dispatcher.Logged())
	}
	if c.Reset != nil {
		d.Register("reset", func(dispatcher.Event) (any, error) {
			c.Reset()
			return "reset requested", nil
		}, dispatcher.Logged())
	}
	if c.Status != nil {
		d.Register("status", func(dispatcher.Event) (any, error) {
			return FormatStats(c.Status()), nil
		})
	}
	d.Register("help", func(dispatcher.Event) (any, error) {
		return "commands: " + strings.Join(d.Commands(), ", "), nil
	})
}

// FormatStats renders loop counters on one line.
func FormatStats(s drive.StatsSnapshot) string {
	return fmt.Sprintf("cycles=%d rate=%.1f/s resets=%d actuator_failures=%d last_capture=%s uptime=%s",
		s.Cycles, s.CyclesPerSecond(), s.Resets, s.ActuatorFailures,
		s.LastCapture.Round(time.Microsecond), s.Uptime.Truncate(time.Second))
}

// Console feeds input lines to a dispatcher and prints the results.
type Console struct {
	d   *dispatcher.Dispatcher
	in  io.Reader
	out io.Writer
	log *slog.Logger
}

// New creates a console reading from in and answering on out.
func New(d *dispatcher.Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{d: d, in: in, out: out, log: logger.With("component", "console")}
}

// Run handles lines until ctx is done or the input ends. The end of input
// only stops the console; it does not stop the program.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.log.Warn("Console input failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.log.Debug("Console input closed")
				return nil
			}
			c.Handle(line)
		}
	}
}

// Handle dispatches one input line.
func (c *Console) Handle(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	result, err := c.d.Dispatch(dispatcher.Event{
		Command:   fields[0],
		Args:      fields[1:],
		Timestamp: time.Now(),
	})
	if err != nil {
		fmt.Fprintf(c.out, "%v (try \"help\")\n", err)
		return
	}
	if s, ok := result.(string); ok && s != "" {
		fmt.Fprintln(c.out, s)
	}
}
