package source

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"plantwatch/internal/frame"
)

// fromMat copies a decoded BGR Mat into a Frame. The Mat stays owned by the caller.
func fromMat(m gocv.Mat, seq uint64, source string) (*frame.Frame, error) {
	if m.Empty() {
		return nil, frame.NewError("decode", frame.ErrNoFrame)
	}
	if m.Channels() != 3 {
		return nil, frame.NewError("decode", fmt.Errorf("%w: got %d", frame.ErrBadChannels, m.Channels()))
	}
	return &frame.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     m.Cols(),
		Height:    m.Rows(),
		Channels:  3,
		Data:      m.ToBytes(),
		Source:    source,
		TraceID:   uuid.New().String(),
	}, nil
}
