package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantwatch",
			Name:      "ticks_total",
			Help:      "Sampling ticks, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	tickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "plantwatch",
			Name:      "tick_seconds",
			Help:      "Time spent acquiring and analysing one frame.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	vegetationPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "plantwatch",
			Name:      "vegetation_percent",
			Help:      "Latest vegetation coverage, raw and smoothed.",
		},
		[]string{"series"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantwatch",
			Name:      "alerts_total",
			Help:      "Alerts emitted, partitioned by kind.",
		},
		[]string{"kind"},
	)

	publishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantwatch",
			Name:      "publish_failures_total",
			Help:      "Failed status publishes, partitioned by transport.",
		},
		[]string{"transport"},
	)

	publishDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plantwatch",
			Name:      "publish_dropped_total",
			Help:      "Status messages dropped because the publish queue was full.",
		},
	)

	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantwatch",
			Name:      "exports_total",
			Help:      "CSV exports, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches the plantwatch collectors to reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ticksTotal,
		tickSeconds,
		vegetationPercent,
		alertsTotal,
		publishFailuresTotal,
		publishDroppedTotal,
		exportsTotal,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// ObserveTick records one sampling tick.
func ObserveTick(d time.Duration, err error) {
	ticksTotal.WithLabelValues(outcome(err)).Inc()
	if d < 0 {
		d = 0
	}
	tickSeconds.Observe(d.Seconds())
}

func SetVegetation(raw, smoothed float64) {
	vegetationPercent.WithLabelValues("raw").Set(raw)
	vegetationPercent.WithLabelValues("smoothed").Set(smoothed)
}

func IncAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

func IncPublishFailure(transport string) {
	publishFailuresTotal.WithLabelValues(transport).Inc()
}

func IncPublishDropped() {
	publishDroppedTotal.Inc()
}

func ObserveExport(err error) {
	exportsTotal.WithLabelValues(outcome(err)).Inc()
}
