// Package postprocess converts raw model output tensors into labeled,
// deduplicated detections.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/labels"
	"gorgonia.org/tensor"
)

const (
	// DefaultConfidenceThreshold filters rows by objectness when
	// DecoderConfig.ConfidenceThreshold is zero.
	DefaultConfidenceThreshold = 0.5
	// DefaultInputSize is the model canvas size assumed when
	// DecoderConfig.InputSize is zero.
	DefaultInputSize = 640
)

// DecodingError indicates a raw output tensor that does not match the layout
// the decoder expects. It points at a model/config mismatch, not a transient
// runtime failure.
type DecodingError struct {
	Reason string
}

func (e *DecodingError) Error() string {
	return "decoding failed: " + e.Reason
}

func decodingErrorf(format string, args ...interface{}) *DecodingError {
	return &DecodingError{Reason: fmt.Sprintf(format, args...)}
}

// DecoderConfig controls the decoder.
type DecoderConfig struct {
	// ConfidenceThreshold t: a row is kept iff its objectness score is
	// strictly greater than t. Defaults to 0.5.
	ConfidenceThreshold float32
	// InputSize is the model canvas size S used to scale normalized box
	// parameters into pixel units. Defaults to 640.
	InputSize int
	// Labels maps class indices to names. A nil table labels everything
	// labels.Unknown.
	Labels *labels.Table
}

// Decoder extracts detections from raw model output of shape [1, N, 4+1+C].
//
// Rows are laid out (cx, cy, w, h, obj, scores[0..C)) with box parameters
// expressed as fractions of the model canvas. A row's confidence is its
// objectness score alone; the class scores pick the label but do not weigh
// the confidence.
type Decoder struct {
	cfg DecoderConfig
}

// NewDecoder creates a decoder, filling zero config fields with defaults.
func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	return &Decoder{cfg: cfg}
}

// Decode validates the tensor layout and returns every row whose objectness
// clears the confidence threshold, in row order. The boxes are corner
// transformed: x = (cx - w/2)*S, y = (cy - h/2)*S, width = w*S, height = h*S.
func (d *Decoder) Decode(out *tensor.Dense) ([]Detection, error) {
	if out == nil {
		return nil, decodingErrorf("output tensor is nil")
	}
	shape := out.Shape()
	if len(shape) != 3 {
		return nil, decodingErrorf("output has rank %d, want 3 ([1, rows, 5+classes])", len(shape))
	}
	if shape[0] != 1 {
		return nil, decodingErrorf("output batch size is %d, want 1", shape[0])
	}
	rows, cols := shape[1], shape[2]
	if cols < 5 {
		return nil, decodingErrorf("output rows carry %d values, want at least 5 (cx, cy, w, h, obj)", cols)
	}
	data, ok := out.Data().([]float32)
	if !ok {
		return nil, decodingErrorf("output dtype is %v, want float32", out.Dtype())
	}
	if len(data) != rows*cols {
		return nil, decodingErrorf("output declares %d x %d values but backing holds %d", rows, cols, len(data))
	}

	s := float32(d.cfg.InputSize)
	detections := []Detection{}
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		obj := row[4]
		if obj <= d.cfg.ConfidenceThreshold {
			continue
		}
		classIndex := argmax(row[5:])
		cx, cy, w, h := row[0], row[1], row[2], row[3]
		detections = append(detections, Detection{
			ClassLabel: d.cfg.Labels.Label(classIndex),
			ClassIndex: classIndex,
			Confidence: obj,
			Box:        images.RectFromCenter(cx*s, cy*s, w*s, h*s),
		})
	}
	return detections, nil
}

// argmax returns the index of the largest value, or -1 for an empty slice.
// Ties resolve to the lowest index.
func argmax(vals []float32) int {
	best := -1
	var bestVal float32
	for i, v := range vals {
		if best < 0 || v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}
