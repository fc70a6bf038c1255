package source

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"plantwatch/internal/frame"
)

var (
	// leafBGR sits inside the default lettuce HSV range, soilBGR has no saturation.
	leafBGR = [3]byte{60, 160, 60}
	soilBGR = [3]byte{100, 100, 100}
)

// Synthetic generates frames whose top rows are leaf-colored and the rest soil.
// The leaf fraction can be changed at runtime to simulate growth or wilting.
type Synthetic struct {
	width  int
	height int

	mu    sync.Mutex
	green float64
	seq   uint64
}

func NewSynthetic(width, height int, green float64) *Synthetic {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	s := &Synthetic{width: width, height: height}
	s.SetGreen(green)
	return s
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) SetGreen(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.green = math.Max(0, math.Min(1, fraction))
}

func (s *Synthetic) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, frame.NewError("read", frame.ErrReadTimeout)
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	leafRows := int(math.Round(s.green * float64(s.height)))
	s.mu.Unlock()

	stride := s.width * 3
	data := make([]byte, stride*s.height)
	for y := 0; y < s.height; y++ {
		px := soilBGR
		if y < leafRows {
			px = leafBGR
		}
		row := data[y*stride : (y+1)*stride]
		for x := 0; x < len(row); x += 3 {
			row[x], row[x+1], row[x+2] = px[0], px[1], px[2]
		}
	}
	return &frame.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Channels:  3,
		Data:      data,
		Source:    s.Name(),
		TraceID:   uuid.New().String(),
	}, nil
}

func (s *Synthetic) Close() error { return nil }
