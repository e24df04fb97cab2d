package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/dispatcher"
	"github.com/alamak-sim/copsimcar/internal/drive"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// syncBuffer is a bytes.Buffer safe for the console goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type controls struct {
	quits  atomic.Int32
	resets atomic.Int32
}

func newConsole(t *testing.T, in io.Reader, out io.Writer) (*Console, *controls) {
	t.Helper()
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)

	c := &controls{}
	Register(d, Controls{
		Quit:  func() { c.quits.Add(1) },
		Reset: func() { c.resets.Add(1) },
		Status: func() drive.StatsSnapshot {
			return drive.StatsSnapshot{Cycles: 20, Uptime: 2 * time.Second}
		},
	})
	return New(d, in, out, nil), c
}

func TestHandle_Commands(t *testing.T) {
	out := &syncBuffer{}
	con, c := newConsole(t, nil, out)

	con.Handle("quit")
	con.Handle("  QUIT \t")
	con.Handle("reset")
	con.Handle("")
	con.Handle("   ")

	assert.Equal(t, int32(2), c.quits.Load())
	assert.Equal(t, int32(1), c.resets.Load())
	assert.Equal(t, "stopping\nstopping\nreset requested\n", out.String())
}

func TestHandle_Status(t *testing.T) {
	out := &syncBuffer{}
	con, _ := newConsole(t, nil, out)

	con.Handle("status")

	assert.Contains(t, out.String(), "cycles=20 rate=10.0/s")
}

func TestHandle_Unknown(t *testing.T) {
	out := &syncBuffer{}
	con, c := newConsole(t, nil, out)

	con.Handle("quitt")
	con.Handle("help")

	assert.Zero(t, c.quits.Load())
	assert.Contains(t, out.String(), "unknown command: quitt")
	assert.Contains(t, out.String(), "commands: help, quit, reset, status")
}

func TestRun_EOFStopsConsoleOnly(t *testing.T) {
	out := &syncBuffer{}
	con, c := newConsole(t, strings.NewReader("reset\nstatus\n"), out)

	err := con.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(1), c.resets.Load())
	assert.Zero(t, c.quits.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	con, c := newConsole(t, pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- con.Run(ctx) }()

	_, err := pw.Write([]byte("quit\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.quits.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop")
	}
}

func TestFormatStats(t *testing.T) {
	s := FormatStats(drive.StatsSnapshot{Cycles: 3, Resets: 1, LastCapture: 1500 * time.Microsecond, Uptime: 1500 * time.Millisecond})
	assert.Equal(t, "cycles=3 rate=2.0/s resets=1 actuator_failures=0 last_capture=1.5ms uptime=1s", s)
}
