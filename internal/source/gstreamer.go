package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"plantwatch/internal/config"
	"plantwatch/internal/frame"
)

// GStreamer captures from a V4L2 device with a
// v4l2src ! videoconvert ! videoscale ! capsfilter(BGR) ! appsink pipeline.
// The appsink keeps only the newest buffer; Next waits for the next one.
type GStreamer struct {
	device string
	width  int
	height int
	logger *slog.Logger

	pipeline *gst.Pipeline
	sink     *app.Sink
	frames   chan *frame.Frame
	seq      uint64
	dropped  uint64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewGStreamer(cfg config.SourceConfig, logger *slog.Logger) (*GStreamer, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, frame.NewError("open", fmt.Errorf("create pipeline: %w", err))
	}
	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, abandon(pipeline, fmt.Errorf("create v4l2src: %w", err))
	}
	if cfg.DevicePath != "" {
		src.SetProperty("device", cfg.DevicePath)
	}
	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, abandon(pipeline, fmt.Errorf("create videoconvert: %w", err))
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, abandon(pipeline, fmt.Errorf("create videoscale: %w", err))
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, abandon(pipeline, fmt.Errorf("create capsfilter: %w", err))
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", cfg.Width, cfg.Height)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, abandon(pipeline, fmt.Errorf("create appsink: %w", err))
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	pipeline.AddMany(src, convert, scale, capsfilter, sink.Element)
	if err := gst.ElementLinkMany(src, convert, scale, capsfilter, sink.Element); err != nil {
		return nil, abandon(pipeline, fmt.Errorf("link pipeline: %w", err))
	}

	g := &GStreamer{
		device:   cfg.DevicePath,
		width:    cfg.Width,
		height:   cfg.Height,
		logger:   logger,
		pipeline: pipeline,
		sink:     sink,
		frames:   make(chan *frame.Frame, 1),
		done:     make(chan struct{}),
	}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.onSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, abandon(pipeline, fmt.Errorf("start pipeline: %w", err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go g.watchBus(ctx)

	if logger != nil {
		logger.Info("gstreamer pipeline playing", "device", cfg.DevicePath, "width", cfg.Width, "height", cfg.Height)
	}
	return g, nil
}

// teardownPipeline releases a pipeline that never reached a usable state.
var teardownPipeline = func(p *gst.Pipeline) {
	_ = p.SetState(gst.StateNull)
}

func abandon(p *gst.Pipeline, err error) error {
	teardownPipeline(p)
	return frame.NewError("open", err)
}

func (g *GStreamer) Name() string { return "gstreamer:" + g.device }

func (g *GStreamer) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := packRows(mapInfo.Bytes(), g.width, g.height)
	buffer.Unmap()
	if data == nil {
		return gst.FlowOK
	}

	f := &frame.Frame{
		Seq:       atomic.AddUint64(&g.seq, 1),
		Timestamp: time.Now(),
		Width:     g.width,
		Height:    g.height,
		Channels:  3,
		Data:      data,
		Source:    g.Name(),
		TraceID:   uuid.New().String(),
	}
	// Keep only the newest frame.
	for {
		select {
		case g.frames <- f:
			return gst.FlowOK
		default:
		}
		select {
		case <-g.frames:
			atomic.AddUint64(&g.dropped, 1)
		default:
		}
	}
}

// packRows copies a BGR buffer into a tightly packed slice. GStreamer pads
// each row of raw video to a multiple of four bytes.
func packRows(src []byte, width, height int) []byte {
	row := width * 3
	stride := (row + 3) &^ 3
	if width <= 0 || height <= 0 || len(src) < stride*(height-1)+row {
		return nil
	}
	out := make([]byte, row*height)
	if stride == row {
		copy(out, src[:row*height])
		return out
	}
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}
	return out
}

func (g *GStreamer) Next(ctx context.Context) (*frame.Frame, error) {
	select {
	case f := <-g.frames:
		return f, nil
	case <-g.done:
		return nil, frame.NewError("read", frame.ErrNoFrame)
	case <-ctx.Done():
		return nil, frame.NewError("read", frame.ErrReadTimeout)
	}
}

func (g *GStreamer) watchBus(ctx context.Context) {
	defer close(g.done)
	bus := g.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if g.logger != nil {
				g.logger.Warn("gstreamer end of stream", "device", g.device)
			}
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			if g.logger != nil {
				g.logger.Error("gstreamer pipeline error",
					"device", g.device,
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"dropped", atomic.LoadUint64(&g.dropped),
				)
			}
			return
		}
	}
}

func (g *GStreamer) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.cancel()
		<-g.done
		err = g.pipeline.SetState(gst.StateNull)
	})
	return err
}
