package telemetry

import (
	"log/slog"

	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
)

// Sink receives every successful tick: it updates the live status, queues
// the status for publishing and owns the record-file exporter.
type Sink struct {
	source     string
	status     *metrics.Store
	dispatcher *Dispatcher
	exporter   *Exporter
	logger     *slog.Logger
}

// NewSink accepts a nil dispatcher when nothing is published or mirrored.
func NewSink(source string, status *metrics.Store, dispatcher *Dispatcher, exporter *Exporter, logger *slog.Logger) *Sink {
	return &Sink{source: source, status: status, dispatcher: dispatcher, exporter: exporter, logger: logger}
}

func (s *Sink) Record(sample model.Sample, alerts []model.Alert) model.Status {
	st := model.NewStatus(sample, alerts)
	metrics.SetVegetation(sample.Raw, sample.Smoothed)
	if s.status != nil {
		s.status.Update(s.source, st)
	}
	if s.dispatcher != nil {
		s.dispatcher.Enqueue(sample, alerts, st)
	}
	if s.logger != nil {
		s.logger.Debug("tick recorded",
			"green_percentage", st.GreenPercentage,
			"raw_percentage", st.RawPercentage,
			"alert", st.Alert,
		)
	}
	return st
}

// Fail records a skipped tick in the live status.
func (s *Sink) Fail(err error) {
	if s.status != nil {
		s.status.Fail(s.source, err)
	}
}

func (s *Sink) Export() (string, error) {
	return s.exporter.Export()
}
