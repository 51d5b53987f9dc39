// Package capture - synthetic frame generator.
package capture

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/nvr-ai/go-rtdetect/images"
)

// Synthetic generates deterministic frames: a bright block sweeping across a
// mid-gray background. No device, no files, no decode cost beyond the fill.
type Synthetic struct {
	mu     sync.Mutex
	width  int
	height int
	block  int
	step   int
	seq    int64
}

var _ Source = (*Synthetic)(nil)

var (
	syntheticBackground = image.NewUniform(color.RGBA{R: 128, G: 128, B: 128, A: 255})
	syntheticBlock      = image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255})
)

// NewSynthetic builds a generator for width x height frames. Non-positive
// dimensions fall back to 640x480.
func NewSynthetic(width, height int) *Synthetic {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	block := height / 4
	if block < 1 {
		block = 1
	}
	step := width / 32
	if step < 1 {
		step = 1
	}
	return &Synthetic{width: width, height: height, block: block, step: step}
}

// Frame renders the next frame in the sweep. The block position depends only
// on Seq, so a sequence is reproducible run to run.
func (s *Synthetic) Frame() (images.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(img, img.Bounds(), syntheticBackground, image.Point{}, draw.Src)

	span := s.width - s.block
	if span < 1 {
		span = 1
	}
	x := int(s.seq*int64(s.step)) % span
	y := (s.height - s.block) / 2
	draw.Draw(img, image.Rect(x, y, x+s.block, y+s.block), syntheticBlock, image.Point{}, draw.Src)

	return images.Frame{Seq: s.seq, Image: img, Timestamp: time.Now()}, true
}

// Close is a no-op.
func (s *Synthetic) Close() error {
	return nil
}
