package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"plantwatch/internal/config"
	"plantwatch/internal/frame"
)

// Preprocessor turns a raw frame into a cleaned BGR Mat: centered crop,
// CLAHE on the Lab lightness channel, then a bilateral filter.
type Preprocessor struct {
	cfg config.PreprocessConfig
}

func NewPreprocessor(cfg config.PreprocessConfig) *Preprocessor {
	return &Preprocessor{cfg: cfg}
}

// ROIRect returns the centered rectangle covering scale of each dimension.
func ROIRect(width, height int, scale float64) image.Rectangle {
	if scale <= 0 || scale >= 1 {
		return image.Rect(0, 0, width, height)
	}
	x0 := int(float64(width) * (0.5 - scale/2))
	x1 := int(float64(width) * (0.5 + scale/2))
	y0 := int(float64(height) * (0.5 - scale/2))
	y1 := int(float64(height) * (0.5 + scale/2))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1)
}

// Apply returns a new Mat the caller must Close.
func (p *Preprocessor) Apply(f *frame.Frame) (gocv.Mat, error) {
	if err := frame.Validate(f); err != nil {
		return gocv.NewMat(), err
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data[:f.Width*f.Height*3])
	if err != nil {
		return gocv.NewMat(), frame.NewError("decode", err)
	}

	if p.cfg.ROI.Enabled {
		region := src.Region(ROIRect(f.Width, f.Height, p.cfg.ROI.Scale))
		cropped := region.Clone()
		region.Close()
		src.Close()
		src = cropped
	}
	if p.cfg.CLAHE.Enabled {
		out, err := equalizeLightness(src, p.cfg.CLAHE)
		src.Close()
		if err != nil {
			return gocv.NewMat(), err
		}
		src = out
	}
	if p.cfg.Denoise.Enabled {
		out := gocv.NewMat()
		gocv.BilateralFilter(src, &out, p.cfg.Denoise.Diameter, p.cfg.Denoise.SigmaColor, p.cfg.Denoise.SigmaSpace)
		src.Close()
		if out.Empty() {
			out.Close()
			return gocv.NewMat(), frame.NewError("denoise", frame.ErrEmptyFrame)
		}
		src = out
	}
	return src, nil
}

func equalizeLightness(src gocv.Mat, cfg config.CLAHEConfig) (gocv.Mat, error) {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(src, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	if len(channels) != 3 {
		return gocv.NewMat(), frame.NewError("clahe", fmt.Errorf("%w: got %d", frame.ErrBadChannels, len(channels)))
	}

	clahe := gocv.NewCLAHEWithParams(cfg.ClipLimit, image.Pt(cfg.TileGrid, cfg.TileGrid))
	defer clahe.Close()
	lightness := gocv.NewMat()
	clahe.Apply(channels[0], &lightness)
	channels[0].Close()
	channels[0] = lightness

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	out := gocv.NewMat()
	gocv.CvtColor(merged, &out, gocv.ColorLabToBGR)
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), frame.NewError("clahe", frame.ErrEmptyFrame)
	}
	return out, nil
}
