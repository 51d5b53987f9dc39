// Package images - Frame definition for the capture-to-detection path.
package images

import (
	"image"
	"time"
)

// Frame is a single frame of video, owned by the scheduler for the duration
// of one processing cycle.
type Frame struct {
	// Seq is the capture sequence number of the frame.
	Seq int64
	// Image is the decoded pixel buffer.
	Image image.Image
	// Timestamp is the capture time of the frame.
	Timestamp time.Time
}

// Bounds returns the pixel bounds of the frame, or the zero rectangle when
// no image is attached.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Empty reports whether the frame carries no usable pixels: a nil image or
// one with zero width or height.
func (f Frame) Empty() bool {
	b := f.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}
