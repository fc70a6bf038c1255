package frame

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	good := Uniform(4, 3, 10, 200, 10)
	if err := Validate(good); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}

	cases := []struct {
		name  string
		frame *Frame
		want  error
	}{
		{"nil", nil, ErrNoFrame},
		{"gray", &Frame{Width: 2, Height: 2, Channels: 1, Data: make([]byte, 4)}, ErrBadChannels},
		{"zero width", &Frame{Width: 0, Height: 2, Channels: 3}, ErrEmptyFrame},
		{"short", &Frame{Width: 2, Height: 2, Channels: 3, Data: make([]byte, 5)}, ErrShortBuffer},
	}
	for _, tc := range cases {
		err := Validate(tc.frame)
		var fe *FrameError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected FrameError, got %v", tc.name, err)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestNewErrorDoesNotDoubleWrap(t *testing.T) {
	inner := NewError("read", ErrReadTimeout)
	outer := NewError("next", inner)
	if outer != inner {
		t.Fatalf("expected the existing FrameError to be returned as is")
	}
}

func TestUniformLayout(t *testing.T) {
	f := Uniform(2, 1, 1, 2, 3)
	want := []byte{1, 2, 3, 1, 2, 3}
	for i := range want {
		if f.Data[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, f.Data[i], want[i])
		}
	}
}
