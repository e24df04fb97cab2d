// Package trackview shows the history of line camera frames as a scrolling
// grayscale strip: the newest frame is the top row.
package trackview

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
)

// DefaultHeight is the number of frames kept in the strip.
const DefaultHeight = 256

// Renderer displays a copy of the strip. Render is called from the view's
// goroutine only.
type Renderer interface {
	Render(img *image.Gray) error
	Close() error
}

var ErrStarted = errors.New("trackview already started")

// View owns the strip image. AppendRow is the producer side; a goroutine
// started by Start renders whatever the image holds when it wakes up, so a
// slow renderer skips intermediate frames instead of queueing them.
type View struct {
	renderer Renderer
	logger   *slog.Logger

	mu  sync.Mutex
	img *image.Gray

	signal chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a view of width columns and height rows, initially white.
func New(width, height int, renderer Renderer, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	if height <= 0 {
		height = DefaultHeight
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &View{
		renderer: renderer,
		logger:   logger.With("component", "trackview"),
		img:      img,
		signal:   make(chan struct{}, 1),
	}
}

// Start renders the initial image and launches the render goroutine.
func (v *View) Start(ctx context.Context) error {
	if v.done != nil {
		return ErrStarted
	}
	if err := v.renderer.Render(v.Snapshot()); err != nil {
		return err
	}

	ctx, v.cancel = context.WithCancel(ctx)
	v.done = make(chan struct{})
	go v.loop(ctx)
	return nil
}

func (v *View) loop(ctx context.Context) {
	defer close(v.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.signal:
			if err := v.renderer.Render(v.Snapshot()); err != nil {
				v.logger.Warn("Unable to render track view", "error", err)
			}
		}
	}
}

// AppendRow scrolls the strip down by one row and puts row on top. Extra
// samples are ignored; a short row leaves the rest of the top row unchanged.
// It never waits for the renderer.
func (v *View) AppendRow(row []byte) {
	v.mu.Lock()
	stride := v.img.Stride
	copy(v.img.Pix[stride:], v.img.Pix[:len(v.img.Pix)-stride])
	copy(v.img.Pix[:stride], row)
	v.mu.Unlock()

	select {
	case v.signal <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current strip.
func (v *View) Snapshot() *image.Gray {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := image.NewGray(v.img.Rect)
	copy(cp.Pix, v.img.Pix)
	return cp
}

// Stop ends the render goroutine and closes the renderer.
func (v *View) Stop() error {
	if v.done == nil {
		return nil
	}
	v.cancel()
	<-v.done
	v.done = nil
	return v.renderer.Close()
}
