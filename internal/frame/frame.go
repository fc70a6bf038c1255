package frame

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Frame is one captured image. Data holds interleaved 8-bit BGR pixels,
// row-major, Width*Height*Channels bytes.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Channels  int
	Data      []byte
	Source    string
	TraceID   string
}

// Source delivers frames. Next must return within the deadline carried by
// ctx; a timeout or any acquisition failure is reported as *FrameError.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Name() string
	Close() error
}

var (
	ErrNoFrame      = errors.New("no frame")
	ErrBadChannels  = errors.New("frame must have 3 channels")
	ErrEmptyFrame   = errors.New("frame has zero size")
	ErrShortBuffer  = errors.New("frame buffer shorter than width*height*channels")
	ErrReadTimeout  = errors.New("frame read timed out")
	ErrReadInFlight = errors.New("previous frame read still in flight")
)

// FrameError is an acquisition or format failure. The tick that hit it is skipped.
type FrameError struct {
	Op  string
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %s: %v", e.Op, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) error {
	var fe *FrameError
	if errors.As(err, &fe) {
		return err
	}
	return &FrameError{Op: op, Err: err}
}

// Validate checks shape and buffer length.
func Validate(f *Frame) error {
	if f == nil {
		return NewError("validate", ErrNoFrame)
	}
	if f.Channels != 3 {
		return NewError("validate", fmt.Errorf("%w: got %d", ErrBadChannels, f.Channels))
	}
	if f.Width <= 0 || f.Height <= 0 {
		return NewError("validate", ErrEmptyFrame)
	}
	if len(f.Data) < f.Width*f.Height*f.Channels {
		return NewError("validate", ErrShortBuffer)
	}
	return nil
}

// Uniform builds a frame where every pixel has the given BGR value.
func Uniform(width, height int, b, g, r byte) *Frame {
	data := make([]byte, width*height*3)
	for i := 0; i < len(data); i += 3 {
		data[i] = b
		data[i+1] = g
		data[i+2] = r
	}
	return &Frame{Width: width, Height: height, Channels: 3, Data: data, Timestamp: time.Now()}
}
