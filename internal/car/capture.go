package car

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

// CaptureFrame waits for the next camera frame and copies it into dst. A nil
// dst only waits for the frame, which paces the control loop to the
// simulation. The buffered frame is released afterwards so the next call
// waits for a fresh one; a failed release is reported as ErrFrameRelease even
// though dst has already been filled.
func (c *Car) CaptureFrame(ctx context.Context, dst []byte) error {
	res := c.cfg.Resolution
	if dst != nil && len(dst) < res {
		return ErrShortBuffer
	}
	if c.session == nil || !c.session.ConnectionLive() {
		c.metrics.captureFailed("not_connected")
		return ErrNotConnected
	}

	sensor := c.handles.visionSensor
	if !c.streaming {
		err := c.session.StartSensorStream(sensor, res)
		if err != nil && !errors.Is(err, remoteapi.ErrNoValue) {
			c.metrics.captureFailed("stream_start")
			c.logger.Error("Unable to start vision sensor stream", "error", err)
			return fmt.Errorf("%w: %v", ErrStreamStart, err)
		}
		c.streaming = true
	}

	frame, attempts, err := c.pollFrame(ctx, sensor, res)
	c.metrics.captureAttempts.Record(context.Background(), int64(attempts))
	if err != nil {
		return err
	}

	if len(frame) < res {
		c.metrics.captureFailed("frame_size")
		return fmt.Errorf("%w: got %d, want %d", ErrFrameSize, len(frame), res)
	}
	if dst != nil {
		copy(dst, frame[:res])
	}

	if err := c.session.DropBufferedFrame(sensor, res); err != nil {
		c.metrics.captureFailed("release")
		c.logger.Error("Unable to release camera image", "error", err)
		return fmt.Errorf("%w: %v", ErrFrameRelease, err)
	}
	return nil
}

// pollFrame reads the buffer until a frame arrives, the connection drops or
// the attempt budget is spent.
func (c *Car) pollFrame(ctx context.Context, sensor remoteapi.Handle, res int) ([]byte, int, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= c.cfg.CaptureBudget; attempt++ {
		frame, err := c.session.BufferedSensorFrame(sensor, res)
		if err == nil {
			return frame, attempt, nil
		}
		if !errors.Is(err, remoteapi.ErrNoValue) {
			c.logger.Debug("Buffered frame read failed", "attempt", attempt, "error", err)
		}
		if !c.session.ConnectionLive() {
			c.metrics.captureFailed("connection_lost")
			c.logger.Error("Connection to CoppeliaSim lost")
			return nil, attempt, ErrConnectionLost
		}

		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}
		if c.cfg.PollInterval <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(c.cfg.PollInterval)
		} else {
			timer.Reset(c.cfg.PollInterval)
		}
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-timer.C:
		}
	}

	c.metrics.captureFailed("timeout")
	c.logger.Error("Timeout waiting for camera image", "attempts", c.cfg.CaptureBudget)
	return nil, c.cfg.CaptureBudget, ErrCaptureTimeout
}
