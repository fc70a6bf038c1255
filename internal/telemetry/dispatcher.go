package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
	"plantwatch/internal/storage"
)

type envelope struct {
	sample model.Sample
	alerts []model.Alert
	status model.Status
}

type DispatcherOptions struct {
	Source     string
	Topic      string
	QueueSize  int
	Timeout    time.Duration
	Encoder    Encoder
	Publishers []Publisher
	Store      storage.Store
	Logger     *slog.Logger
}

// Dispatcher drains queued statuses on its own goroutine so that slow or
// unreachable brokers never hold up sampling.
type Dispatcher struct {
	opts  DispatcherOptions
	queue chan envelope

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
	abort   chan struct{}
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Encoder == nil {
		opts.Encoder = encodeJSON
	}
	return &Dispatcher{
		opts:  opts,
		queue: make(chan envelope, opts.QueueSize),
		done:  make(chan struct{}),
		abort: make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

// Enqueue never blocks. It reports false when the queue is full or closed.
func (d *Dispatcher) Enqueue(sample model.Sample, alerts []model.Alert, status model.Status) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- envelope{sample: sample, alerts: alerts, status: status}:
		return true
	default:
		metrics.IncPublishDropped()
		if d.opts.Logger != nil {
			d.opts.Logger.Warn("publish queue full, dropping status", "timestamp", status.Timestamp)
		}
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		d.handle(env)
	}
}

func (d *Dispatcher) handle(env envelope) {
	select {
	case <-d.abort:
		return
	default:
	}
	if len(d.opts.Publishers) > 0 {
		payload, err := d.opts.Encoder(env.status)
		if err != nil {
			if d.opts.Logger != nil {
				d.opts.Logger.Error("status encode failed", "err", err)
			}
		} else {
			for _, p := range d.opts.Publishers {
				d.publish(p, payload)
			}
		}
	}
	if d.opts.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		defer cancel()
		if err := d.opts.Store.SaveSamples(ctx, d.opts.Source, []model.Sample{env.sample}); err != nil && d.opts.Logger != nil {
			d.opts.Logger.Warn("sample mirror failed", "err", err)
		}
		for _, a := range env.alerts {
			if err := d.opts.Store.SaveAlert(ctx, d.opts.Source, a); err != nil && d.opts.Logger != nil {
				d.opts.Logger.Warn("alert mirror failed", "kind", a.Kind, "err", err)
			}
		}
	}
}

func (d *Dispatcher) publish(p Publisher, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	if err := p.Publish(ctx, payload); err != nil {
		perr := &PublishError{Transport: p.Name(), Topic: d.opts.Topic, Err: err}
		metrics.IncPublishFailure(p.Name())
		if d.opts.Logger != nil {
			d.opts.Logger.Warn("publish failed", "err", perr)
		}
	}
}

// Close stops accepting statuses and drains the queue until ctx expires.
// Past the deadline the remaining statuses are discarded. Publishers are
// closed only after the worker has returned, so callers may release the
// storage mirror once Close is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	var drainErr error
	if !started {
		close(d.done)
	}
	select {
	case <-d.done:
	case <-ctx.Done():
		drainErr = errors.New("publish queue not drained before shutdown deadline")
		close(d.abort)
		<-d.done
	}

	var g errgroup.Group
	for _, p := range d.opts.Publishers {
		g.Go(p.Close)
	}
	return errors.Join(drainErr, g.Wait())
}
