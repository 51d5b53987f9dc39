// Package preprocess converts captured video frames into the fixed-shape
// normalized input tensors a detection model expects.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-rtdetect/images"
	"gorgonia.org/tensor"
)

// ResizeMode selects how a frame is fitted onto the square model canvas.
type ResizeMode string

const (
	// ResizeStretch scales the frame to the canvas directly. Non-square
	// frames are distorted.
	ResizeStretch ResizeMode = "stretch"
	// ResizeLetterbox preserves the aspect ratio and pads the remainder of
	// the canvas with PadColor.
	ResizeLetterbox ResizeMode = "letterbox"
)

// DefaultInputSize is the canvas size used when Config.InputSize is zero.
const DefaultInputSize = 640

// defaultPadColor matches the gray letterbox fill YOLO-family models are
// trained with.
var defaultPadColor = color.RGBA{114, 114, 114, 255}

// Config controls the encoder.
type Config struct {
	// InputSize is the square canvas size S. The output tensor has shape
	// [1, 3, S, S].
	InputSize int
	// Mode selects stretch or letterbox fitting. Defaults to ResizeStretch,
	// the reference behavior.
	Mode ResizeMode
	// Interpolation is the resampling filter. Defaults to Lanczos3.
	Interpolation resize.InterpolationFunction
	// PadColor fills the letterbox margins. Defaults to 114-gray.
	PadColor color.Color
}

// Mapping describes how source pixels were placed on the model canvas, for
// projecting detection boxes back into source coordinates.
type Mapping struct {
	// ScaleX and ScaleY are the source-to-canvas scale factors. They are
	// equal in letterbox mode.
	ScaleX float64
	ScaleY float64
	// PadLeft and PadTop are the letterbox margins in canvas pixels.
	PadLeft int
	PadTop  int
}

// ToSource projects a box in canvas pixel units back into source-frame
// pixel units.
func (m Mapping) ToSource(r images.Rect) images.Rect {
	return images.Rect{
		X:      float32((float64(r.X) - float64(m.PadLeft)) / m.ScaleX),
		Y:      float32((float64(r.Y) - float64(m.PadTop)) / m.ScaleY),
		Width:  float32(float64(r.Width) / m.ScaleX),
		Height: float32(float64(r.Height) / m.ScaleY),
	}
}

// EncodingError indicates a frame could not be converted to a tensor.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return "encoding failed: " + e.Reason
}

func encodingErrorf(format string, args ...interface{}) *EncodingError {
	return &EncodingError{Reason: fmt.Sprintf(format, args...)}
}

// Encoder converts frames into [1, 3, S, S] float32 tensors with values
// normalized to [0, 1], laid out plane-major: all red values, then all green,
// then all blue.
type Encoder struct {
	cfg Config
}

// NewEncoder creates an encoder, filling zero config fields with defaults.
func NewEncoder(cfg Config) *Encoder {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.Mode == "" {
		cfg.Mode = ResizeStretch
	}
	if cfg.PadColor == nil {
		cfg.PadColor = defaultPadColor
	}
	// NearestNeighbor is the zero value of InterpolationFunction, so it
	// doubles as "unset" here. Callers wanting speed over quality should
	// pick Bilinear.
	if cfg.Interpolation == resize.NearestNeighbor {
		cfg.Interpolation = resize.Lanczos3
	}
	return &Encoder{cfg: cfg}
}

// InputSize returns the canvas size S.
func (e *Encoder) InputSize() int {
	return e.cfg.InputSize
}

// Encode converts a frame into a fresh [1, 3, S, S] tensor.
func (e *Encoder) Encode(frame images.Frame) (*tensor.Dense, error) {
	s := e.cfg.InputSize
	data := make([]float32, 3*s*s)
	if err := e.EncodeInto(frame, data); err != nil {
		return nil, err
	}
	return tensor.New(tensor.WithShape(1, 3, s, s), tensor.WithBacking(data)), nil
}

// EncodeInto writes the normalized channel planes into a caller-owned buffer
// of at least 3*S*S floats. The scheduler reuses one buffer across cycles.
func (e *Encoder) EncodeInto(frame images.Frame, data []float32) error {
	if frame.Empty() {
		b := frame.Bounds()
		return encodingErrorf("frame has no pixels (%dx%d)", b.Dx(), b.Dy())
	}

	s := e.cfg.InputSize
	channelSize := s * s
	if len(data) < channelSize*3 {
		return encodingErrorf("destination buffer holds %d floats, needs %d", len(data), channelSize*3)
	}
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	canvas := e.fit(frame.Image)

	min := canvas.Bounds().Min
	i := 0
	for y := 0; y < s; y++ {
		for x := 0; x < s; x++ {
			r, g, b, _ := canvas.At(min.X+x, min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

// MappingFor computes the canvas placement for a source frame of the given
// dimensions under the encoder's resize mode.
func (e *Encoder) MappingFor(srcWidth, srcHeight int) Mapping {
	s := e.cfg.InputSize
	if e.cfg.Mode != ResizeLetterbox {
		return Mapping{
			ScaleX: float64(s) / float64(srcWidth),
			ScaleY: float64(s) / float64(srcHeight),
		}
	}

	scale := math.Min(float64(s)/float64(srcWidth), float64(s)/float64(srcHeight))
	newWidth := int(float64(srcWidth) * scale)
	newHeight := int(float64(srcHeight) * scale)
	return Mapping{
		ScaleX:  scale,
		ScaleY:  scale,
		PadLeft: (s - newWidth) / 2,
		PadTop:  (s - newHeight) / 2,
	}
}

// fit resizes the source image onto the S x S canvas per the configured mode.
func (e *Encoder) fit(img image.Image) image.Image {
	s := e.cfg.InputSize
	if e.cfg.Mode != ResizeLetterbox {
		return resize.Resize(uint(s), uint(s), img, e.cfg.Interpolation)
	}

	bounds := img.Bounds()
	m := e.MappingFor(bounds.Dx(), bounds.Dy())
	newWidth := int(float64(bounds.Dx()) * m.ScaleX)
	newHeight := int(float64(bounds.Dy()) * m.ScaleY)
	resized := resize.Resize(uint(newWidth), uint(newHeight), img, e.cfg.Interpolation)

	letterboxed := image.NewRGBA(image.Rect(0, 0, s, s))
	draw.Draw(letterboxed, letterboxed.Bounds(), &image.Uniform{e.cfg.PadColor}, image.Point{}, draw.Src)
	draw.Draw(letterboxed, image.Rect(m.PadLeft, m.PadTop, m.PadLeft+newWidth, m.PadTop+newHeight),
		resized, image.Point{}, draw.Over)
	return letterboxed
}
