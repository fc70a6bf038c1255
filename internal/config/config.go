package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	Source     SourceConfig     `json:"source" yaml:"source"`
	Preprocess PreprocessConfig `json:"preprocess" yaml:"preprocess"`
	Segment    SegmentConfig    `json:"segment" yaml:"segment"`
	Smoothing  SmoothingConfig  `json:"smoothing" yaml:"smoothing"`
	Detection  DetectionConfig  `json:"detection" yaml:"detection"`
	Sampling   SamplingConfig   `json:"sampling" yaml:"sampling"`
	History    HistoryConfig    `json:"history" yaml:"history"`
	Export     ExportConfig     `json:"export" yaml:"export"`
	Publish    PublishConfig    `json:"publish" yaml:"publish"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	API        APIConfig        `json:"api" yaml:"api"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
}

type SourceConfig struct {
	Kind             string        `json:"kind" yaml:"kind"`
	Device           int           `json:"device" yaml:"device"`
	DevicePath       string        `json:"device_path" yaml:"device_path"`
	Path             string        `json:"path" yaml:"path"`
	Width            int           `json:"width" yaml:"width"`
	Height           int           `json:"height" yaml:"height"`
	ReadTimeout      time.Duration `json:"read_timeout" yaml:"read_timeout"`
	AutoWhiteBalance bool          `json:"auto_white_balance" yaml:"auto_white_balance"`
	ManualExposure   bool          `json:"manual_exposure" yaml:"manual_exposure"`
	Exposure         float64       `json:"exposure" yaml:"exposure"`
	SyntheticGreen   float64       `json:"synthetic_green" yaml:"synthetic_green"`
}

type PreprocessConfig struct {
	ROI     ROIConfig     `json:"roi" yaml:"roi"`
	CLAHE   CLAHEConfig   `json:"clahe" yaml:"clahe"`
	Denoise DenoiseConfig `json:"denoise" yaml:"denoise"`
}

type ROIConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Scale   float64 `json:"scale" yaml:"scale"`
}

type CLAHEConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	ClipLimit float64 `json:"clip_limit" yaml:"clip_limit"`
	TileGrid  int     `json:"tile_grid" yaml:"tile_grid"`
}

type DenoiseConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Diameter   int     `json:"diameter" yaml:"diameter"`
	SigmaColor float64 `json:"sigma_color" yaml:"sigma_color"`
	SigmaSpace float64 `json:"sigma_space" yaml:"sigma_space"`
}

// SegmentConfig bounds are HSV in OpenCV 8-bit units: H 0-180, S and V 0-255.
type SegmentConfig struct {
	Lower       [3]int `json:"lower" yaml:"lower"`
	Upper       [3]int `json:"upper" yaml:"upper"`
	KernelSize  int    `json:"kernel_size" yaml:"kernel_size"`
	KernelShape string `json:"kernel_shape" yaml:"kernel_shape"`
}

type SmoothingConfig struct {
	BufferCapacity int `json:"buffer_capacity" yaml:"buffer_capacity"`
}

type DetectionConfig struct {
	DropThresholdPercent float64       `json:"drop_threshold_percent" yaml:"drop_threshold_percent"`
	TrendWindow          time.Duration `json:"trend_window" yaml:"trend_window"`
	AbsoluteFloorPercent float64       `json:"absolute_floor_percent" yaml:"absolute_floor_percent"`
	MinBreachDuration    time.Duration `json:"min_breach_duration" yaml:"min_breach_duration"`
}

type SamplingConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

type HistoryConfig struct {
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
}

type ExportConfig struct {
	Directory string        `json:"directory" yaml:"directory"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
}

type PublishConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Transport string        `json:"transport" yaml:"transport"`
	Endpoint  string        `json:"endpoint" yaml:"endpoint"`
	Brokers   []string      `json:"brokers" yaml:"brokers"`
	Topic     string        `json:"topic" yaml:"topic"`
	Encoding  string        `json:"encoding" yaml:"encoding"`
	ClientID  string        `json:"client_id" yaml:"client_id"`
	QoS       byte          `json:"qos" yaml:"qos"`
	QueueSize int           `json:"queue_size" yaml:"queue_size"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

// ConfigError reports an unusable configuration. It is fatal at startup.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func invalid(key, format string, args ...any) error {
	return &ConfigError{Key: key, Err: fmt.Errorf(format, args...)}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Source: SourceConfig{
			Kind:           "camera",
			Device:         1,
			DevicePath:     "/dev/video0",
			Width:          640,
			Height:         480,
			ReadTimeout:    800 * time.Millisecond,
			ManualExposure: false,
			Exposure:       -4,
			SyntheticGreen: 0.4,
		},
		Preprocess: PreprocessConfig{
			ROI:     ROIConfig{Enabled: true, Scale: 0.6},
			CLAHE:   CLAHEConfig{Enabled: true, ClipLimit: 3.0, TileGrid: 8},
			Denoise: DenoiseConfig{Enabled: true, Diameter: 9, SigmaColor: 75, SigmaSpace: 75},
		},
		Segment: SegmentConfig{
			Lower:       [3]int{35, 40, 80},
			Upper:       [3]int{75, 180, 220},
			KernelSize:  7,
			KernelShape: "ellipse",
		},
		Smoothing: SmoothingConfig{BufferCapacity: 15},
		Detection: DetectionConfig{
			DropThresholdPercent: 10,
			TrendWindow:          60 * time.Second,
			AbsoluteFloorPercent: 10,
			MinBreachDuration:    30 * time.Second,
		},
		Sampling: SamplingConfig{Interval: 1 * time.Second},
		Export:   ExportConfig{Directory: "plantData"},
		Publish: PublishConfig{
			Enabled:   false,
			Transport: "mqtt",
			Endpoint:  "tcp://localhost:1883",
			Topic:     "plantwatch/green",
			Encoding:  "json",
			QueueSize: 64,
			Timeout:   2 * time.Second,
		},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:plantwatch.db?_pragma=busy_timeout(5000)"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

// Load reads path (YAML or JSON) over the defaults. An empty path yields the
// defaults. Durations are Go duration strings in both formats; JSON also
// accepts integer nanoseconds. Environment overrides are applied last, then
// the result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		trimmed := strings.TrimSpace(string(content))
		if len(trimmed) == 0 {
			return nil, &ConfigError{Err: errors.New("config file is empty")}
		}
		var decodeErr error
		if looksLikeJSON(trimmed) {
			decodeErr = json.Unmarshal([]byte(trimmed), cfg)
		} else {
			decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
		}
		if decodeErr != nil {
			return nil, &ConfigError{Err: fmt.Errorf("parse %s: %w", path, decodeErr)}
		}
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Publish.QueueSize <= 0 {
		cfg.Publish.QueueSize = 64
	}
	if cfg.Publish.Timeout <= 0 {
		cfg.Publish.Timeout = 2 * time.Second
	}
	if cfg.Publish.Encoding == "" {
		cfg.Publish.Encoding = "json"
	}
	if cfg.Segment.KernelShape == "" {
		cfg.Segment.KernelShape = "ellipse"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLANTWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PLANTWATCH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("PLANTWATCH_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("PLANTWATCH_SOURCE_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.Device = n
		}
	}
	if v := os.Getenv("PLANTWATCH_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("PLANTWATCH_ROI_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Preprocess.ROI.Scale = f
		}
	}
	if v := os.Getenv("PLANTWATCH_BUFFER_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Smoothing.BufferCapacity = n
		}
	}
	if v := os.Getenv("PLANTWATCH_DROP_THRESHOLD_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.DropThresholdPercent = f
		}
	}
	if v := os.Getenv("PLANTWATCH_TREND_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.TrendWindow = d
		}
	}
	if v := os.Getenv("PLANTWATCH_ABSOLUTE_FLOOR_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.AbsoluteFloorPercent = f
		}
	}
	if v := os.Getenv("PLANTWATCH_MIN_BREACH_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.MinBreachDuration = d
		}
	}
	if v := os.Getenv("PLANTWATCH_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.ReadTimeout = d
		}
	}
	if v := os.Getenv("PLANTWATCH_SAMPLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sampling.Interval = d
		}
	}
	if v := os.Getenv("PLANTWATCH_EXPORT_DIRECTORY"); v != "" {
		cfg.Export.Directory = v
	}
	if v := os.Getenv("PLANTWATCH_PUBLISH_ENDPOINT"); v != "" {
		cfg.Publish.Endpoint = v
	}
	if v := os.Getenv("PLANTWATCH_PUBLISH_ENABLED"); v != "" {
		cfg.Publish.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PLANTWATCH_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
}

func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Source.Kind) {
	case "camera", "gstreamer", "synthetic":
	case "directory":
		if cfg.Source.Path == "" {
			return invalid("source.path", "required when source.kind is directory")
		}
	default:
		return invalid("source.kind", "unsupported source %q", cfg.Source.Kind)
	}
	if cfg.Source.ReadTimeout <= 0 {
		return invalid("source.read_timeout", "must be > 0")
	}
	if cfg.Source.SyntheticGreen < 0 || cfg.Source.SyntheticGreen > 1 {
		return invalid("source.synthetic_green", "must be within [0,1]")
	}
	if s := cfg.Preprocess.ROI.Scale; cfg.Preprocess.ROI.Enabled && (s <= 0 || s > 1) {
		return invalid("preprocess.roi.scale", "must be within (0,1], got %v", s)
	}
	if cfg.Preprocess.CLAHE.Enabled {
		if cfg.Preprocess.CLAHE.ClipLimit <= 0 {
			return invalid("preprocess.clahe.clip_limit", "must be > 0")
		}
		if cfg.Preprocess.CLAHE.TileGrid <= 0 {
			return invalid("preprocess.clahe.tile_grid", "must be > 0")
		}
	}
	if cfg.Preprocess.Denoise.Enabled {
		if cfg.Preprocess.Denoise.Diameter <= 0 {
			return invalid("preprocess.denoise.diameter", "must be > 0")
		}
		if cfg.Preprocess.Denoise.SigmaColor <= 0 || cfg.Preprocess.Denoise.SigmaSpace <= 0 {
			return invalid("preprocess.denoise", "sigma_color and sigma_space must be > 0")
		}
	}
	maxima := [3]int{180, 255, 255}
	for i := 0; i < 3; i++ {
		lo, hi := cfg.Segment.Lower[i], cfg.Segment.Upper[i]
		if lo < 0 || hi > maxima[i] {
			return invalid("segment", "channel %d bounds [%d,%d] outside [0,%d]", i, lo, hi, maxima[i])
		}
		if lo > hi {
			return invalid("segment", "channel %d lower %d exceeds upper %d", i, lo, hi)
		}
	}
	if cfg.Segment.KernelSize < 1 {
		return invalid("segment.kernel_size", "must be >= 1")
	}
	switch cfg.Segment.KernelShape {
	case "rect", "ellipse":
	default:
		return invalid("segment.kernel_shape", "must be rect or ellipse")
	}
	if cfg.Smoothing.BufferCapacity < 1 {
		return invalid("smoothing.buffer_capacity", "must be >= 1")
	}
	if d := cfg.Detection.DropThresholdPercent; d <= 0 || d > 100 {
		return invalid("detection.drop_threshold_percent", "must be within (0,100]")
	}
	if cfg.Detection.TrendWindow <= 0 {
		return invalid("detection.trend_window", "must be > 0")
	}
	if f := cfg.Detection.AbsoluteFloorPercent; f < 0 || f > 100 {
		return invalid("detection.absolute_floor_percent", "must be within [0,100]")
	}
	if cfg.Detection.MinBreachDuration < 0 {
		return invalid("detection.min_breach_duration", "must be >= 0")
	}
	if cfg.Sampling.Interval <= 0 {
		return invalid("sampling.interval", "must be > 0")
	}
	if cfg.Source.ReadTimeout >= cfg.Sampling.Interval {
		return invalid("source.read_timeout", "must be < sampling.interval (%s), got %s", cfg.Sampling.Interval, cfg.Source.ReadTimeout)
	}
	if cfg.History.MaxSamples < 0 {
		return invalid("history.max_samples", "must be >= 0")
	}
	if strings.TrimSpace(cfg.Export.Directory) == "" {
		return invalid("export.directory", "required")
	}
	if cfg.Export.Interval < 0 {
		return invalid("export.interval", "must be >= 0")
	}
	if cfg.Publish.Enabled {
		switch cfg.Publish.Transport {
		case "mqtt":
			if cfg.Publish.Endpoint == "" {
				return invalid("publish.endpoint", "required for mqtt transport")
			}
		case "kafka":
			if len(cfg.Publish.Brokers) == 0 {
				return invalid("publish.brokers", "required for kafka transport")
			}
		case "log":
		default:
			return invalid("publish.transport", "unsupported transport %q", cfg.Publish.Transport)
		}
		if cfg.Publish.Topic == "" {
			return invalid("publish.topic", "required when publish.enabled is true")
		}
		if cfg.Publish.QoS > 2 {
			return invalid("publish.qos", "must be 0, 1 or 2")
		}
	}
	switch cfg.Publish.Encoding {
	case "json", "msgpack", "plain":
	default:
		return invalid("publish.encoding", "must be json, msgpack or plain")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return invalid("storage.driver", "unsupported driver %q", cfg.Storage.Driver)
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return invalid("api.addr", "required when api.enabled is true")
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
