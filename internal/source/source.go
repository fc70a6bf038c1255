package source

import (
	"fmt"
	"log/slog"
	"strings"

	"plantwatch/internal/config"
	"plantwatch/internal/frame"
)

// New opens the frame source selected by cfg.Kind.
func New(cfg config.SourceConfig, logger *slog.Logger) (frame.Source, error) {
	kind := strings.ToLower(cfg.Kind)
	if logger != nil {
		logger.Info("opening frame source", "kind", kind, "read_timeout", cfg.ReadTimeout)
	}
	switch kind {
	case "camera":
		return NewCamera(cfg, logger)
	case "gstreamer":
		return NewGStreamer(cfg, logger)
	case "directory":
		return NewDirectory(cfg.Path, logger)
	case "synthetic":
		return NewSynthetic(cfg.Width, cfg.Height, cfg.SyntheticGreen), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Kind)
	}
}
