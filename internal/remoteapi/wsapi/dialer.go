// Package wsapi is a remoteapi transport that talks JSON over a WebSocket to
// a remote API server script running inside the CoppeliaSim scene.
package wsapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	ws "github.com/gorilla/websocket"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

// Dialer opens WebSocket sessions. The zero value is usable.
type Dialer struct {
	Logger *slog.Logger
	// Path is the endpoint on the server, "/" when empty.
	Path string
}

// Dial connects to ws://host:port/, trying up to opts.Retries times with
// opts.Timeout per attempt. A dropped session is never re-established.
func (d *Dialer) Dial(ctx context.Context, host string, port int, opts remoteapi.DialOptions) (remoteapi.Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := d.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: path}

	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}
	dialer := ws.Dialer{HandshakeTimeout: opts.Timeout}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx := ctx
		var cancel context.CancelFunc = func() {}
		if opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		conn, _, err := dialer.DialContext(attemptCtx, u.String(), nil)
		cancel()
		if err == nil {
			logger.Debug("Remote API session opened", "url", u.String(), "attempt", attempt)
			return newSession(conn, opts, logger), nil
		}

		lastErr = err
		logger.Warn("Remote API dial failed", "url", u.String(), "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("dialing %s after %d attempts: %w", u.String(), attempts, lastErr)
}

var _ remoteapi.Dialer = (*Dialer)(nil)
