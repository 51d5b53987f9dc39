package detector

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/labels"
	"github.com/nvr-ai/go-rtdetect/postprocess"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func testFrame(seq int64) images.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	return images.Frame{Seq: seq, Image: img, Timestamp: time.Unix(100, 0)}
}

// rowMajor flattens rows of (cx, cy, w, h, obj, scores...) into a raw output
// tensor.
func rowMajor(rows [][]float32) *tensor.Dense {
	cols := len(rows[0])
	data := make([]float32, 0, len(rows)*cols)
	for _, r := range rows {
		data = append(data, r...)
	}
	return tensor.New(tensor.WithShape(1, len(rows), cols), tensor.WithBacking(data))
}

// TestDetectEndToEnd runs encode -> stub infer -> decode -> suppress over one
// frame: two boxes on the same object collapse to one, the background row is
// dropped, and frame identity is stamped on the result.
func TestDetectEndToEnd(t *testing.T) {
	out := rowMajor([][]float32{
		{0.5, 0.5, 0.2, 0.2, 0.90, 0.1, 0.9},  // class 1
		{0.51, 0.5, 0.2, 0.2, 0.70, 0.1, 0.9}, // overlaps the first
		{0.2, 0.2, 0.1, 0.1, 0.05, 0.9, 0.1},  // background
	})
	stub := &inference.Stub{Output: out}

	det, err := New(Config{
		Engine: stub,
		Labels: labels.NewTable([]string{"person", "car"}),
	})
	require.NoError(t, err)

	set, err := det.Detect(context.Background(), testFrame(7))
	require.NoError(t, err)

	require.Len(t, set.Detections, 1)
	d := set.Detections[0]
	assert.Equal(t, "car", d.ClassLabel)
	assert.Equal(t, 1, d.ClassIndex)
	assert.InDelta(t, 0.90, d.Confidence, 1e-6)
	assert.InDelta(t, (0.5-0.1)*640, d.Box.X, 1e-2)
	assert.InDelta(t, 0.2*640, d.Box.Width, 1e-2)

	assert.Equal(t, int64(7), set.FrameSeq)
	assert.Equal(t, time.Unix(100, 0), set.Timestamp)
	assert.Equal(t, int64(1), stub.Calls())
}

// TestDetectEncodingError: an unusable frame fails before the engine is ever
// consulted.
func TestDetectEncodingError(t *testing.T) {
	stub := &inference.Stub{}
	det, err := New(Config{Engine: stub})
	require.NoError(t, err)

	_, err = det.Detect(context.Background(), images.Frame{})
	require.Error(t, err)

	var encErr *preprocess.EncodingError
	assert.ErrorAs(t, err, &encErr)
	assert.Zero(t, stub.Calls())
}

// TestDetectDecodingError: malformed engine output classifies as a
// DecodingError.
func TestDetectDecodingError(t *testing.T) {
	// Four trailing values per row: no objectness column.
	bad := tensor.New(tensor.WithShape(1, 2, 4), tensor.WithBacking(make([]float32, 8)))
	det, err := New(Config{Engine: &inference.Stub{Output: bad}})
	require.NoError(t, err)

	_, err = det.Detect(context.Background(), testFrame(1))
	require.Error(t, err)

	var decErr *postprocess.DecodingError
	assert.ErrorAs(t, err, &decErr)
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

// TestDecodeStampsNothing: staged Decode leaves frame identity to the
// caller.
func TestDecodeStampsNothing(t *testing.T) {
	det, err := New(Config{Engine: &inference.Stub{}})
	require.NoError(t, err)

	out := rowMajor([][]float32{{0.5, 0.5, 0.2, 0.2, 0.9, 1}})
	set, err := det.Decode(out)
	require.NoError(t, err)
	assert.Len(t, set.Detections, 1)
	assert.Zero(t, set.FrameSeq)
	assert.True(t, set.Timestamp.IsZero())
}

func TestDetectorCustomStages(t *testing.T) {
	enc := preprocess.NewEncoder(preprocess.Config{InputSize: 320})
	dec := postprocess.NewDecoder(postprocess.DecoderConfig{
		ConfidenceThreshold: 0.25,
		InputSize:           320,
	})
	det, err := New(Config{
		Engine:  &inference.Stub{Output: rowMajor([][]float32{{0.5, 0.5, 0.5, 0.5, 0.3, 1}})},
		Encoder: enc,
		Decoder: dec,
	})
	require.NoError(t, err)

	set, err := det.Detect(context.Background(), testFrame(2))
	require.NoError(t, err)
	require.Len(t, set.Detections, 1)
	assert.InDelta(t, 0.5*320, set.Detections[0].Box.Width, 1e-2, "boxes scale to the configured input size")
}
