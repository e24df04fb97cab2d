package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) add(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, keysAndValues))
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.add("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.add("INFO", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.add("ERROR", msg, keysAndValues) }

func (l *testLogger) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	return d, logger
}

func TestDispatcher_RoutesWithArgs(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("status", func(e Event) (any, error) {
		got = e
		return "cycles=3", nil
	})

	result, err := d.Dispatch(Event{Command: "status", Args: []string{"verbose"}})

	require.NoError(t, err)
	assert.Equal(t, "cycles=3", result)
	assert.Equal(t, "status", got.Command)
	assert.Equal(t, []string{"verbose"}, got.Args)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: "warp"})

	assert.EqualError(t, err, "unknown command: warp")
}

func TestDispatcher_HandlerError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	errNotConnected := errors.New("car not connected")
	d.Register("reset", func(Event) (any, error) { return nil, errNotConnected })

	_, err := d.Dispatch(Event{Command: "reset"})

	assert.ErrorIs(t, err, errNotConnected)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register("status", func(Event) (any, error) { return "ok", nil }, Logged())

	_, err := d.Dispatch(Event{Command: "status", Args: []string{"a", "b"}})
	require.NoError(t, err)

	lines := logger.lines()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "DEBUG: handling command [command status args 2]"))
	assert.True(t, strings.HasPrefix(lines[1], "DEBUG: command complete"))
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register("quit", func(Event) (any, error) { return nil, errors.New("already stopping") }, Logged())

	_, err := d.Dispatch(Event{Command: "quit"})
	require.Error(t, err)

	lines := logger.lines()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "ERROR: command failed"))
	assert.Contains(t, lines[1], "already stopping")
}

func TestDispatcher_CaseInsensitive(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(" Quit", func(Event) (any, error) { return "bye", nil })

	for _, cmd := range []string{"quit", "QUIT", " Quit\n"} {
		result, err := d.Dispatch(Event{Command: cmd})
		require.NoError(t, err, "%q", cmd)
		assert.Equal(t, "bye", result, "%q", cmd)
	}
}

func TestDispatcher_Commands(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("status", func(Event) (any, error) { return nil, nil })
	d.Register("Quit", func(Event) (any, error) { return nil, nil })
	d.Register("reset", func(Event) (any, error) { return nil, nil })
	d.Register("RESET", func(Event) (any, error) { return "second", nil })

	assert.Equal(t, []string{"quit", "reset", "status"}, d.Commands())
	result, err := d.Dispatch(Event{Command: "reset"})
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}

func TestDispatcher_ConcurrentDispatch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var mu sync.Mutex
	count := 0
	d.Register("status", func(Event) (any, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Dispatch(Event{Command: "status"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, count)
}
