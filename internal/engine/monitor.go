package engine

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"plantwatch/internal/alerts"
	"plantwatch/internal/config"
	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
)

type ThresholdState string

const (
	StateNormal    ThresholdState = "normal"
	StateBreaching ThresholdState = "breaching"
	StateAlerting  ThresholdState = "alerting"
)

// Monitor appends samples to History and runs the relative-drop and
// sustained-low detectors on every one. Both detectors are level
// triggered: they fire on each tick for as long as their condition holds.
type Monitor struct {
	logger  *slog.Logger
	alerts  *alerts.Store
	history *History
	cfg     config.DetectionConfig

	mu              sync.Mutex
	breachStartedAt time.Time
	state           ThresholdState
	resetPending    bool
}

func NewMonitor(cfg config.DetectionConfig, history *History, logger *slog.Logger, alertsStore *alerts.Store) *Monitor {
	if history == nil {
		history = NewHistory(0)
	}
	return &Monitor{
		logger:  logger,
		alerts:  alertsStore,
		history: history,
		cfg:     cfg,
		state:   StateNormal,
	}
}

func (m *Monitor) History() *History {
	return m.history
}

// Ingest records s and returns the alerts it raised.
func (m *Monitor) Ingest(s model.Sample) []model.Alert {
	m.applyPendingReset()
	stored := m.history.Append(s)

	out := make([]model.Alert, 0, 2)
	if alert, ok := m.evaluateDrop(stored); ok {
		out = append(out, alert)
	}
	if alert, ok := m.evaluateFloor(stored); ok {
		out = append(out, alert)
	}
	for _, alert := range out {
		m.emit(alert)
	}
	return out
}

func (m *Monitor) evaluateDrop(s model.Sample) (model.Alert, bool) {
	window := m.history.Window(s.Timestamp.Add(-m.cfg.TrendWindow), s.Timestamp)
	if len(window) < 2 {
		return model.Alert{}, false
	}
	oldest := window[0].Smoothed
	if oldest == 0 {
		return model.Alert{}, false
	}
	change := (s.Smoothed - oldest) / oldest * 100
	if change > -m.cfg.DropThresholdPercent {
		return model.Alert{}, false
	}
	return model.Alert{
		Kind:      model.AlertRelativeDrop,
		Timestamp: s.Timestamp,
		Magnitude: math.Abs(change),
		Value:     s.Smoothed,
		Threshold: m.cfg.DropThresholdPercent,
	}, true
}

func (m *Monitor) evaluateFloor(s model.Sample) (model.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	floor := m.cfg.AbsoluteFloorPercent
	if s.Smoothed >= floor {
		m.breachStartedAt = time.Time{}
		m.state = StateNormal
		return model.Alert{}, false
	}
	if m.breachStartedAt.IsZero() {
		m.breachStartedAt = s.Timestamp
	}
	if s.Timestamp.Sub(m.breachStartedAt) < m.cfg.MinBreachDuration {
		m.state = StateBreaching
		return model.Alert{}, false
	}
	m.state = StateAlerting
	return model.Alert{
		Kind:      model.AlertSustainedLow,
		Timestamp: s.Timestamp,
		Magnitude: floor - s.Smoothed,
		Value:     s.Smoothed,
		Threshold: floor,
	}, true
}

func (m *Monitor) emit(alert model.Alert) {
	if m.alerts != nil {
		m.alerts.Add(alert)
	}
	metrics.IncAlert(string(alert.Kind))
	if m.logger != nil {
		m.logger.Warn("alert triggered",
			"kind", alert.Kind,
			"magnitude", model.Round2(alert.Magnitude),
			"value", model.Round2(alert.Value),
			"threshold", alert.Threshold,
			"timestamp", alert.Timestamp,
		)
	}
}

// State reports the sustained-low state machine position.
func (m *Monitor) State() ThresholdState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) BreachStartedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breachStartedAt, !m.breachStartedAt.IsZero()
}

// Reset asks for the breach timer to be cleared. The state only changes at
// the start of the next Ingest, so a tick never observes a partial reset.
// History is kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetPending = true
	if m.logger != nil {
		m.logger.Info("threshold reset requested")
	}
}

// ResetPending reports whether a reset waits for the next tick.
func (m *Monitor) ResetPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetPending
}

func (m *Monitor) applyPendingReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.resetPending {
		return
	}
	m.resetPending = false
	m.breachStartedAt = time.Time{}
	m.state = StateNormal
	if m.logger != nil {
		m.logger.Info("threshold state reset")
	}
}
