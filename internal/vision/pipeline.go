package vision

import (
	"plantwatch/internal/config"
	"plantwatch/internal/frame"
)

// Pipeline runs preprocessing and segmentation on one frame.
type Pipeline struct {
	pre *Preprocessor
	seg *Segmenter
}

func NewPipeline(pre config.PreprocessConfig, seg config.SegmentConfig) *Pipeline {
	return &Pipeline{pre: NewPreprocessor(pre), seg: NewSegmenter(seg)}
}

// Extract returns the raw vegetation percentage of f.
func (p *Pipeline) Extract(f *frame.Frame) (float64, error) {
	m, err := p.pre.Apply(f)
	if err != nil {
		m.Close()
		return 0, err
	}
	defer m.Close()
	return p.seg.Percent(m)
}

func (p *Pipeline) Close() error {
	return p.seg.Close()
}
