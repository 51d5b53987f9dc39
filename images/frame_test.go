package images

import (
	"image"
	"testing"
	"time"
)

func TestFrameEmpty(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		empty bool
	}{
		{"nil image", Frame{}, true},
		{"zero width", Frame{Image: image.NewRGBA(image.Rect(0, 0, 0, 480))}, true},
		{"zero height", Frame{Image: image.NewRGBA(image.Rect(0, 0, 640, 0))}, true},
		{"valid", Frame{Image: image.NewRGBA(image.Rect(0, 0, 640, 480))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.Empty(); got != tt.empty {
				t.Errorf("Empty() = %v, expected %v", got, tt.empty)
			}
		})
	}
}

func TestFrameBounds(t *testing.T) {
	f := Frame{
		Seq:       7,
		Image:     image.NewRGBA(image.Rect(0, 0, 320, 240)),
		Timestamp: time.Now(),
	}
	b := f.Bounds()
	if b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("Bounds() = %v, expected 320x240", b)
	}

	var empty Frame
	if !empty.Bounds().Empty() {
		t.Errorf("nil-image frame should have empty bounds")
	}
}
