package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

const (
	sendChSize             = 256
	writeWait              = 2 * time.Second
	defaultBlockingTimeout = 5 * time.Second
)

// session manages one WebSocket connection with a single write goroutine.
// Streamed images are kept in one slot per sensor handle; a newer image
// replaces an unread one.
type session struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	live   atomic.Bool

	blockingTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[string]chan Message
	images  map[remoteapi.Handle]*imageSlot
	pushes  uint64

	logger *slog.Logger
}

func newSession(conn *ws.Conn, opts remoteapi.DialOptions, logger *slog.Logger) *session {
	timeout := opts.BlockingTimeout
	if timeout <= 0 {
		timeout = defaultBlockingTimeout
	}
	s := &session{
		conn:            conn,
		sendCh:          make(chan []byte, sendChSize),
		done:            make(chan struct{}),
		blockingTimeout: timeout,
		pending:         make(map[string]chan Message),
		images:          make(map[remoteapi.Handle]*imageSlot),
		logger:          logger,
	}
	s.live.Store(true)

	go s.writeLoop()
	go s.readLoop()
	return s
}

// writeLoop drains sendCh and writes messages to the WebSocket.
func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.sendCh:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.lost("write deadline", err)
				return
			}
			if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.lost("write", err)
				return
			}
		}
	}
}

// readLoop routes replies to their waiting callers and stores image pushes.
func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.lost("read", err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Unreadable message from simulator", "raw", string(data))
			continue
		}

		if msg.Type == TypeImage {
			s.storeImage(msg.Handle, msg.Image)
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// lost marks the connection dead and fails every call waiting for a reply.
func (s *session) lost(op string, err error) {
	if !s.live.Swap(false) {
		return
	}

	s.mu.Lock()
	for id, ch := range s.pending {
		ch <- Message{ID: id, Ret: remoteapi.ReturnLocalError}
		delete(s.pending, id)
	}
	closed := s.closed
	s.mu.Unlock()

	if !closed {
		s.logger.Warn("Remote API connection lost", "op", op, "error", err)
	}
}

// imageSlot holds the newest streamed image of one sensor. seq numbers the
// pushes; read is the seq last returned by BufferedSensorFrame.
type imageSlot struct {
	data []byte
	seq  uint64
	read uint64
}

func (s *session) storeImage(h remoteapi.Handle, img []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	slot, ok := s.images[h]
	if !ok {
		slot = &imageSlot{}
		s.images[h] = slot
	}
	slot.data = img
	slot.seq = s.pushes
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) encode(fn string, blocking bool, args ...any) (string, []byte, error) {
	req := Request{ID: uuid.NewString(), Func: fn, Args: args, Blocking: blocking}
	if req.Args == nil {
		req.Args = []any{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("encoding %s: %w", fn, err)
	}
	return req.ID, data, nil
}

// oneShot queues a request without waiting for the reply. A full queue or a
// dead connection is reported as a local error.
func (s *session) oneShot(fn string, args ...any) error {
	if !s.ConnectionLive() {
		return remoteapi.ReturnLocalError.Err(fn)
	}
	_, data, err := s.encode(fn, false, args...)
	if err != nil {
		return err
	}
	select {
	case s.sendCh <- data:
		return nil
	default:
		s.logger.Warn("Remote API send queue full, dropping command", "func", fn)
		return remoteapi.ReturnLocalError.Err(fn)
	}
}

// call sends a request and waits for its reply.
func (s *session) call(ctx context.Context, fn string, args ...any) (Message, error) {
	if !s.ConnectionLive() {
		return Message{}, remoteapi.ReturnLocalError.Err(fn)
	}
	id, data, err := s.encode(fn, true, args...)
	if err != nil {
		return Message{}, err
	}

	ch := make(chan Message, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()
	if !s.live.Load() {
		return Message{}, remoteapi.ReturnLocalError.Err(fn)
	}

	timer := time.NewTimer(s.blockingTimeout)
	defer timer.Stop()

	select {
	case s.sendCh <- data:
	case <-timer.C:
		return Message{}, remoteapi.ReturnTimeout.Err(fn)
	case <-s.done:
		return Message{}, remoteapi.ReturnLocalError.Err(fn)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}

	for {
		select {
		case msg := <-ch:
			return msg, msg.Ret.Err(fn)
		case <-timer.C:
			return Message{}, remoteapi.ReturnTimeout.Err(fn)
		case <-s.done:
			return Message{}, remoteapi.ReturnLocalError.Err(fn)
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (s *session) command(fn string, h remoteapi.Handle, v float64, mode remoteapi.OpMode) error {
	if mode == remoteapi.Blocking {
		_, err := s.call(context.Background(), fn, h, v)
		return err
	}
	return s.oneShot(fn, h, v)
}

func (s *session) ObjectHandle(ctx context.Context, name string) (remoteapi.Handle, error) {
	msg, err := s.call(ctx, FuncObjectHandle, name)
	if err != nil {
		return remoteapi.InvalidHandle, err
	}
	return msg.Handle, nil
}

func (s *session) SetTargetPosition(h remoteapi.Handle, angle float64, mode remoteapi.OpMode) error {
	return s.command(FuncTargetPosition, h, angle, mode)
}

func (s *session) SetTargetVelocity(h remoteapi.Handle, velocity float64, mode remoteapi.OpMode) error {
	return s.command(FuncTargetVelocity, h, velocity, mode)
}

func (s *session) SetForceLimit(h remoteapi.Handle, force float64, mode remoteapi.OpMode) error {
	return s.command(FuncForceLimit, h, force, mode)
}

// StartSensorStream subscribes to the sensor. Like the first read of a legacy
// streaming call it reports novalue until an image has been pushed.
func (s *session) StartSensorStream(h remoteapi.Handle, resolution int) error {
	if err := s.oneShot(FuncStartStream, h, resolution); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.images[h]
	s.mu.Unlock()
	if !ok {
		return remoteapi.ReturnNoValue.Err(FuncStartStream)
	}
	return nil
}

func (s *session) BufferedSensorFrame(h remoteapi.Handle, _ int) ([]byte, error) {
	const fn = "getBufferedVisionSensorImage"
	if s.isClosed() {
		return nil, remoteapi.ReturnLocalError.Err(fn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.images[h]
	if !ok {
		return nil, remoteapi.ReturnNoValue.Err(fn)
	}
	slot.read = slot.seq
	return append([]byte(nil), slot.data...), nil
}

// DropBufferedFrame clears the slot unless an image arrived after the last
// read; that image is still unseen and is kept for the next read.
func (s *session) DropBufferedFrame(h remoteapi.Handle, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remoteapi.ReturnLocalError.Err("dropBufferedVisionSensorImage")
	}
	if slot, ok := s.images[h]; ok && slot.read == slot.seq {
		delete(s.images, h)
	}
	return nil
}

func (s *session) CallScriptFunction(ctx context.Context, script, function string) error {
	_, err := s.call(ctx, FuncCallScript, script, function)
	return err
}

func (s *session) ConnectionLive() bool {
	return s.live.Load() && !s.isClosed()
}

// Close sends a close frame and stops both loops.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.live.Store(false)
	_ = s.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return s.conn.Close()
}

var _ remoteapi.Session = (*session)(nil)
