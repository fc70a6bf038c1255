package vision

import (
	"image"

	"gocv.io/x/gocv"

	"plantwatch/internal/config"
	"plantwatch/internal/frame"
)

// Segmenter measures the share of pixels inside an HSV range after
// removing speckles (open) and filling pinholes (close).
type Segmenter struct {
	lower  gocv.Scalar
	upper  gocv.Scalar
	kernel gocv.Mat
}

func NewSegmenter(cfg config.SegmentConfig) *Segmenter {
	shape := gocv.MorphEllipse
	if cfg.KernelShape == "rect" {
		shape = gocv.MorphRect
	}
	size := cfg.KernelSize
	if size < 1 {
		size = 1
	}
	return &Segmenter{
		lower:  gocv.NewScalar(float64(cfg.Lower[0]), float64(cfg.Lower[1]), float64(cfg.Lower[2]), 0),
		upper:  gocv.NewScalar(float64(cfg.Upper[0]), float64(cfg.Upper[1]), float64(cfg.Upper[2]), 0),
		kernel: gocv.GetStructuringElement(shape, image.Pt(size, size)),
	}
}

// Mask returns the cleaned binary mask. The caller must Close it.
func (s *Segmenter) Mask(bgr gocv.Mat) (gocv.Mat, error) {
	if bgr.Empty() {
		return gocv.NewMat(), frame.NewError("segment", frame.ErrEmptyFrame)
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, s.lower, s.upper, &mask)

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(mask, &opened, gocv.MorphOpen, s.kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, s.kernel)
	if closed.Empty() {
		closed.Close()
		return gocv.NewMat(), frame.NewError("segment", frame.ErrEmptyFrame)
	}
	return closed, nil
}

// Percent returns the vegetation share of bgr in [0,100].
func (s *Segmenter) Percent(bgr gocv.Mat) (float64, error) {
	mask, err := s.Mask(bgr)
	if err != nil {
		return 0, err
	}
	defer mask.Close()
	total := mask.Rows() * mask.Cols()
	if total == 0 {
		return 0, frame.NewError("segment", frame.ErrEmptyFrame)
	}
	nonZero := gocv.CountNonZero(mask)
	if nonZero == total {
		return 100, nil
	}
	return float64(nonZero) / float64(total) * 100, nil
}

func (s *Segmenter) Close() error {
	return s.kernel.Close()
}
