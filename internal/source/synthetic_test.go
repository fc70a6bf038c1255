package source

import (
	"context"
	"errors"
	"testing"

	"plantwatch/internal/frame"
)

func TestSyntheticLeafRows(t *testing.T) {
	src := NewSynthetic(4, 10, 0.3)
	f, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := frame.Validate(f); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	stride := f.Width * 3
	leaf := 0
	for y := 0; y < f.Height; y++ {
		if f.Data[y*stride+1] == leafBGR[1] {
			leaf++
		}
	}
	if leaf != 3 {
		t.Fatalf("expected 3 leaf rows, got %d", leaf)
	}
	if f.Seq != 1 || f.TraceID == "" {
		t.Fatalf("missing metadata: seq=%d trace=%q", f.Seq, f.TraceID)
	}
}

func TestSyntheticClampsFraction(t *testing.T) {
	src := NewSynthetic(2, 2, 0)
	src.SetGreen(7)
	f, _ := src.Next(context.Background())
	if f.Data[len(f.Data)-2] != leafBGR[1] {
		t.Fatalf("fraction above 1 should fill the frame")
	}
}

func TestSyntheticCancelledContext(t *testing.T) {
	src := NewSynthetic(2, 2, 0.5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	var fe *frame.FrameError
	if !errors.As(err, &fe) || !errors.Is(err, frame.ErrReadTimeout) {
		t.Fatalf("expected timeout FrameError, got %v", err)
	}
}
