package model

import "time"

type AlertKind string

const (
	AlertRelativeDrop AlertKind = "relative_drop"
	AlertSustainedLow AlertKind = "sustained_low"
)

// Sample is one successful tick: the raw segmenter output and the smoothed value.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       float64   `json:"raw_value"`
	Smoothed  float64   `json:"smoothed_value"`
}

type Alert struct {
	Kind      AlertKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Magnitude float64   `json:"magnitude"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
}

// Status is the compact message published once per tick.
type Status struct {
	Timestamp       time.Time `json:"timestamp" msgpack:"timestamp"`
	GreenPercentage float64   `json:"green_percentage" msgpack:"green_percentage"`
	RawPercentage   float64   `json:"raw_percentage" msgpack:"raw_percentage"`
	Alert           int       `json:"alert" msgpack:"alert"`
	RelativeDrop    bool      `json:"relative_drop" msgpack:"relative_drop"`
	SustainedLow    bool      `json:"sustained_low" msgpack:"sustained_low"`
}

// NewStatus rounds the percentages to two decimals and folds the alert
// kinds into flags.
func NewStatus(s Sample, alerts []Alert) Status {
	st := Status{
		Timestamp:       s.Timestamp,
		GreenPercentage: Round2(s.Smoothed),
		RawPercentage:   Round2(s.Raw),
	}
	for _, a := range alerts {
		switch a.Kind {
		case AlertRelativeDrop:
			st.RelativeDrop = true
		case AlertSustainedLow:
			st.SustainedLow = true
		}
	}
	if st.RelativeDrop || st.SustainedLow {
		st.Alert = 1
	}
	return st
}

func Round2(v float64) float64 {
	if v < 0 {
		return -Round2(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
