package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Smoothing.BufferCapacity != 15 || cfg.Detection.TrendWindow != time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg.Detection)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := writeFile(t, "plantwatch.yaml", `
source:
  kind: synthetic
  read_timeout: 300ms
preprocess:
  roi:
    enabled: true
    scale: 0.5
segment:
  lower: [30, 70, 70]
  upper: [80, 240, 240]
  kernel_size: 5
  kernel_shape: rect
detection:
  drop_threshold_percent: 20
  trend_window: 90s
  min_breach_duration: 45s
sampling:
  interval: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Preprocess.ROI.Scale != 0.5 {
		t.Fatalf("roi scale: %v", cfg.Preprocess.ROI.Scale)
	}
	if cfg.Segment.Lower != [3]int{30, 70, 70} || cfg.Segment.KernelShape != "rect" {
		t.Fatalf("segment: %+v", cfg.Segment)
	}
	if cfg.Detection.TrendWindow != 90*time.Second || cfg.Detection.MinBreachDuration != 45*time.Second {
		t.Fatalf("durations: %+v", cfg.Detection)
	}
	if cfg.Sampling.Interval != 500*time.Millisecond {
		t.Fatalf("interval: %v", cfg.Sampling.Interval)
	}
	if cfg.Smoothing.BufferCapacity != 15 {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Smoothing.BufferCapacity)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "plantwatch.json", `{"source":{"kind":"synthetic"},"smoothing":{"buffer_capacity":3}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Smoothing.BufferCapacity != 3 {
		t.Fatalf("buffer capacity: %d", cfg.Smoothing.BufferCapacity)
	}
}

func TestLoadJSONDurations(t *testing.T) {
	path := writeFile(t, "plantwatch.json", `{
		"source": {"kind": "synthetic", "read_timeout": "250ms"},
		"detection": {"trend_window": "90s", "min_breach_duration": 45000000000},
		"sampling": {"interval": "500ms"},
		"publish": {"timeout": "3s"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detection.TrendWindow != 90*time.Second || cfg.Detection.MinBreachDuration != 45*time.Second {
		t.Fatalf("detection durations: %+v", cfg.Detection)
	}
	if cfg.Source.ReadTimeout != 250*time.Millisecond || cfg.Sampling.Interval != 500*time.Millisecond {
		t.Fatalf("read timeout %v interval %v", cfg.Source.ReadTimeout, cfg.Sampling.Interval)
	}
	if cfg.Publish.Timeout != 3*time.Second || cfg.Detection.DropThresholdPercent != 10 {
		t.Fatalf("unset keys should keep defaults: %+v", cfg.Publish)
	}

	bad := writeFile(t, "bad.json", `{"detection": {"trend_window": "soon"}}`)
	var cerr *ConfigError
	if _, err := Load(bad); !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError for bad duration, got %v", err)
	}
}

func TestReadTimeoutShorterThanInterval(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Source.ReadTimeout >= cfg.Sampling.Interval {
		t.Fatalf("default read timeout %v must be shorter than interval %v", cfg.Source.ReadTimeout, cfg.Sampling.Interval)
	}
	cfg.Source.ReadTimeout = 2 * time.Second
	err := Validate(cfg)
	var cerr *ConfigError
	if !errors.As(err, &cerr) || cerr.Key != "source.read_timeout" {
		t.Fatalf("expected source.read_timeout ConfigError, got %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.yaml", "   \n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLANTWATCH_SAMPLE_INTERVAL", "5s")
	t.Setenv("PLANTWATCH_PUBLISH_ENDPOINT", "tcp://broker:1883")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sampling.Interval != 5*time.Second {
		t.Fatalf("interval: %v", cfg.Sampling.Interval)
	}
	if cfg.Publish.Endpoint != "tcp://broker:1883" {
		t.Fatalf("endpoint: %s", cfg.Publish.Endpoint)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"roi scale zero":     func(c *Config) { c.Preprocess.ROI.Scale = 0 },
		"roi scale above 1":  func(c *Config) { c.Preprocess.ROI.Scale = 1.5 },
		"hue above 180":      func(c *Config) { c.Segment.Upper[0] = 200 },
		"lower above upper":  func(c *Config) { c.Segment.Lower[1] = 250 },
		"kernel zero":        func(c *Config) { c.Segment.KernelSize = 0 },
		"buffer zero":        func(c *Config) { c.Smoothing.BufferCapacity = 0 },
		"drop threshold":     func(c *Config) { c.Detection.DropThresholdPercent = 0 },
		"window":             func(c *Config) { c.Detection.TrendWindow = 0 },
		"floor":              func(c *Config) { c.Detection.AbsoluteFloorPercent = 101 },
		"interval":           func(c *Config) { c.Sampling.Interval = 0 },
		"export dir":         func(c *Config) { c.Export.Directory = " " },
		"directory no path":  func(c *Config) { c.Source.Kind = "directory" },
		"unknown source":     func(c *Config) { c.Source.Kind = "webcam" },
		"kafka without list": func(c *Config) { c.Publish.Enabled = true; c.Publish.Transport = "kafka" },
		"bad encoding":       func(c *Config) { c.Publish.Encoding = "xml" },
		"read outlasts tick": func(c *Config) { c.Source.ReadTimeout = c.Sampling.Interval },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := Validate(cfg)
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: expected ConfigError, got %T", name, err)
		}
	}
}

func TestROIScaleIgnoredWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preprocess.ROI.Enabled = false
	cfg.Preprocess.ROI.Scale = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled roi should not be validated: %v", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	want := DefaultConfig()
	want.Source.Kind = "directory"
	want.Source.Path = "/srv/frames"
	want.Publish.Brokers = []string{"kafka-1:9092"}
	want.Detection.TrendWindow = 2 * time.Minute

	for _, name := range []string{"plantwatch.yaml", "plantwatch.json"} {
		path := filepath.Join(t.TempDir(), name)
		if err := Save(path, want); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("%s: config mismatch (-want +got):\n%s", name, diff)
		}
	}
}
