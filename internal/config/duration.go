package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonDuration decodes "90s" style strings as well as integer nanoseconds,
// matching what yaml.v3 accepts for time.Duration.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = jsonDuration(parsed)
	case float64:
		*d = jsonDuration(time.Duration(x))
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

func (c *SourceConfig) UnmarshalJSON(data []byte) error {
	type plain SourceConfig
	aux := struct {
		*plain
		ReadTimeout *jsonDuration `json:"read_timeout"`
	}{plain: (*plain)(c), ReadTimeout: (*jsonDuration)(&c.ReadTimeout)}
	return json.Unmarshal(data, &aux)
}

func (c *DetectionConfig) UnmarshalJSON(data []byte) error {
	type plain DetectionConfig
	aux := struct {
		*plain
		TrendWindow       *jsonDuration `json:"trend_window"`
		MinBreachDuration *jsonDuration `json:"min_breach_duration"`
	}{
		plain:             (*plain)(c),
		TrendWindow:       (*jsonDuration)(&c.TrendWindow),
		MinBreachDuration: (*jsonDuration)(&c.MinBreachDuration),
	}
	return json.Unmarshal(data, &aux)
}

func (c *SamplingConfig) UnmarshalJSON(data []byte) error {
	type plain SamplingConfig
	aux := struct {
		*plain
		Interval *jsonDuration `json:"interval"`
	}{plain: (*plain)(c), Interval: (*jsonDuration)(&c.Interval)}
	return json.Unmarshal(data, &aux)
}

func (c *ExportConfig) UnmarshalJSON(data []byte) error {
	type plain ExportConfig
	aux := struct {
		*plain
		Interval *jsonDuration `json:"interval"`
	}{plain: (*plain)(c), Interval: (*jsonDuration)(&c.Interval)}
	return json.Unmarshal(data, &aux)
}

func (c *PublishConfig) UnmarshalJSON(data []byte) error {
	type plain PublishConfig
	aux := struct {
		*plain
		Timeout *jsonDuration `json:"timeout"`
	}{plain: (*plain)(c), Timeout: (*jsonDuration)(&c.Timeout)}
	return json.Unmarshal(data, &aux)
}
