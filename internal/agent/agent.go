package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"plantwatch/internal/engine"
	"plantwatch/internal/frame"
	"plantwatch/internal/logging"
	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
	"plantwatch/internal/telemetry"
)

// Extractor reduces a frame to its raw vegetation percentage.
type Extractor interface {
	Extract(f *frame.Frame) (float64, error)
}

type Options struct {
	Source         frame.Source
	Extractor      Extractor
	Smoother       *engine.Smoother
	Monitor        *engine.Monitor
	Sink           *telemetry.Sink
	Interval       time.Duration
	ReadTimeout    time.Duration
	ExportInterval time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Agent runs the sampling loop. Ticks are strictly sequential.
type Agent struct {
	opts Options
}

func New(opts Options) *Agent {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	// A read may never outlast the tick it belongs to.
	if opts.ReadTimeout <= 0 || opts.ReadTimeout > opts.Interval {
		opts.ReadTimeout = opts.Interval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Agent{opts: opts}
}

// Tick acquires and analyses one frame. On error nothing is recorded and
// the monitor state is left alone.
func (a *Agent) Tick(ctx context.Context) (model.Sample, []model.Alert, error) {
	started := a.opts.Now()
	sample, alerts, err := a.tick(ctx, started)
	metrics.ObserveTick(a.opts.Now().Sub(started), err)
	if err != nil {
		a.opts.Sink.Fail(err)
		a.opts.Logger.Warn("tick skipped", "tick", started, "err", err)
		return model.Sample{}, nil, err
	}
	return sample, alerts, nil
}

func (a *Agent) tick(ctx context.Context, now time.Time) (model.Sample, []model.Alert, error) {
	readCtx, cancel := context.WithTimeout(ctx, a.opts.ReadTimeout)
	defer cancel()
	f, err := a.opts.Source.Next(readCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = frame.ErrReadTimeout
		}
		return model.Sample{}, nil, frame.NewError("read", err)
	}
	raw, err := a.opts.Extractor.Extract(f)
	if err != nil {
		return model.Sample{}, nil, frame.NewError("extract", err)
	}

	sample := model.Sample{
		Timestamp: now,
		Raw:       raw,
		Smoothed:  a.opts.Smoother.Push(raw),
	}
	alerts := a.opts.Monitor.Ingest(sample)
	// Ingest may clamp the timestamp; report what was stored.
	if last, ok := a.opts.Monitor.History().Last(); ok {
		sample = last
	}
	a.opts.Sink.Record(sample, alerts)
	return sample, alerts, nil
}

// Run ticks every Interval until ctx is cancelled, then writes a final
// export and closes the frame source.
func (a *Agent) Run(ctx context.Context) error {
	defer func() {
		if err := a.opts.Source.Close(); err != nil {
			a.opts.Logger.Warn("frame source close failed", "err", err)
		}
	}()

	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()

	var exportC <-chan time.Time
	if a.opts.ExportInterval > 0 {
		exportTicker := time.NewTicker(a.opts.ExportInterval)
		defer exportTicker.Stop()
		exportC = exportTicker.C
	}

	a.opts.Logger.Info("sampling started",
		"source", a.opts.Source.Name(),
		"interval", a.opts.Interval,
		"read_timeout", a.opts.ReadTimeout,
		"export_interval", a.opts.ExportInterval,
	)

	for {
		select {
		case <-ctx.Done():
			a.opts.Logger.Info("sampling stopped, writing final export")
			_, err := a.opts.Sink.Export()
			return err
		case <-exportC:
			_, _ = a.opts.Sink.Export()
		case <-ticker.C:
			started := time.Now()
			a.Tick(ctx)
			if took := time.Since(started); took > a.opts.Interval {
				a.opts.Logger.Warn("tick overran interval", "took", took, "interval", a.opts.Interval)
			}
		}
	}
}
