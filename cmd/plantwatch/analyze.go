package main

import (
	"fmt"
	"io"

	"plantwatch/internal/config"
	"plantwatch/internal/source"
	"plantwatch/internal/vision"
)

// analyze runs the configured preprocessing and segmentation on each image.
// Failures are reported per file; the command fails if any image failed.
func analyze(out io.Writer, configPath string, paths []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	pipeline := vision.NewPipeline(cfg.Preprocess, cfg.Segment)
	defer pipeline.Close()

	failed := 0
	for i, path := range paths {
		f, err := source.ReadImage(path, uint64(i+1), "analyze")
		if err == nil {
			var pct float64
			pct, err = pipeline.Extract(f)
			if err == nil {
				fmt.Fprintf(out, "%s\t%.2f\n", path, pct)
				continue
			}
		}
		failed++
		fmt.Fprintf(out, "%s\terror: %v\n", path, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(paths))
	}
	return nil
}
