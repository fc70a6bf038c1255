package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"plantwatch/internal/config"
	"plantwatch/internal/frame"
)

// Camera reads from a local capture device through OpenCV.
//
// VideoCapture.Read blocks without a deadline, so every read runs on a
// helper goroutine. When the caller's context expires first the read is
// abandoned and later calls fail with ErrReadInFlight until it returns.
type Camera struct {
	device int
	cap    *gocv.VideoCapture
	logger *slog.Logger

	mu       sync.Mutex
	inflight bool
	closed   bool
	seq      uint64
	reads    sync.WaitGroup
}

func NewCamera(cfg config.SourceConfig, logger *slog.Logger) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, frame.NewError("open", fmt.Errorf("device %d: %w", cfg.Device, err))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, frame.NewError("open", fmt.Errorf("device %d not available", cfg.Device))
	}
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if !cfg.AutoWhiteBalance {
		vc.Set(gocv.VideoCaptureAutoWB, 0)
	}
	if cfg.ManualExposure {
		// V4L2 backends treat 0.25 as "manual" on the auto-exposure control.
		vc.Set(gocv.VideoCaptureAutoExposure, 0.25)
		vc.Set(gocv.VideoCaptureExposure, cfg.Exposure)
	}
	if logger != nil {
		logger.Info("camera opened",
			"device", cfg.Device,
			"width", vc.Get(gocv.VideoCaptureFrameWidth),
			"height", vc.Get(gocv.VideoCaptureFrameHeight),
		)
	}
	return &Camera{device: cfg.Device, cap: vc, logger: logger}, nil
}

func (c *Camera) Name() string { return fmt.Sprintf("camera:%d", c.device) }

type readResult struct {
	f   *frame.Frame
	err error
}

func (c *Camera) Next(ctx context.Context) (*frame.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, frame.NewError("read", frame.ErrNoFrame)
	}
	if c.inflight {
		c.mu.Unlock()
		return nil, frame.NewError("read", frame.ErrReadInFlight)
	}
	c.inflight = true
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	out := make(chan readResult, 1)
	c.reads.Add(1)
	go func() {
		defer c.reads.Done()
		m := gocv.NewMat()
		defer m.Close()

		var res readResult
		if ok := c.cap.Read(&m); !ok {
			res.err = frame.NewError("read", frame.ErrNoFrame)
		} else {
			res.f, res.err = fromMat(m, seq, c.Name())
		}

		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
		out <- res
	}()

	select {
	case res := <-out:
		return res.f, res.err
	case <-ctx.Done():
		if c.logger != nil {
			c.logger.Warn("camera read timed out", "device", c.device, "seq", seq)
		}
		return nil, frame.NewError("read", frame.ErrReadTimeout)
	}
}

// Close waits up to three seconds for an abandoned read before releasing the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.reads.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		if c.logger != nil {
			c.logger.Warn("camera read still blocked at close", "device", c.device)
		}
		// Releasing the handle under a live read would crash OpenCV.
		return fmt.Errorf("camera %d: read still in flight", c.device)
	}
	return c.cap.Close()
}
