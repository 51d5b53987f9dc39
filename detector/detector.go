// Package detector composes the full detection pipeline: encode, infer,
// decode, suppress.
package detector

import (
	"context"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/labels"
	"github.com/nvr-ai/go-rtdetect/postprocess"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Config assembles the pipeline stages around an engine. Engine is required;
// nil stages fall back to their package defaults.
type Config struct {
	// Engine runs the model. Required.
	Engine inference.Engine
	// Encoder converts frames into input tensors. Nil gets the default
	// stretch-to-640 encoder.
	Encoder *preprocess.Encoder
	// Decoder extracts detections from raw output. Nil gets defaults
	// sized to the encoder, labeled by Labels.
	Decoder *postprocess.Decoder
	// Suppressor deduplicates detections. Nil gets first-match at 0.5.
	Suppressor *postprocess.Suppressor
	// Labels feeds the default decoder when Decoder is nil.
	Labels *labels.Table
}

// Detector is the staged pipeline the scheduler drives. Decode includes
// suppression, so a decoded set is ready to publish. The stages are also
// exposed together through Detect for one-shot use on a single frame.
type Detector struct {
	encoder    *preprocess.Encoder
	engine     inference.Engine
	decoder    *postprocess.Decoder
	suppressor *postprocess.Suppressor
}

// New assembles a detector.
func New(cfg Config) (*Detector, error) {
	if cfg.Engine == nil {
		return nil, errors.New("detector requires an inference engine")
	}
	encoder := cfg.Encoder
	if encoder == nil {
		encoder = preprocess.NewEncoder(preprocess.Config{})
	}
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = postprocess.NewDecoder(postprocess.DecoderConfig{
			InputSize: encoder.InputSize(),
			Labels:    cfg.Labels,
		})
	}
	suppressor := cfg.Suppressor
	if suppressor == nil {
		suppressor = postprocess.NewSuppressor(postprocess.SuppressorConfig{})
	}
	return &Detector{
		encoder:    encoder,
		engine:     cfg.Engine,
		decoder:    decoder,
		suppressor: suppressor,
	}, nil
}

// Encode converts a frame into the model input tensor.
func (d *Detector) Encode(frame images.Frame) (*tensor.Dense, error) {
	return d.encoder.Encode(frame)
}

// Infer runs the engine over an encoded input.
func (d *Detector) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	return d.engine.Infer(ctx, input)
}

// Decode extracts detections from raw model output and suppresses
// duplicates. The returned set carries detections only; the scheduler stamps
// frame identity at publish time.
func (d *Detector) Decode(out *tensor.Dense) (postprocess.DetectionSet, error) {
	candidates, err := d.decoder.Decode(out)
	if err != nil {
		return postprocess.DetectionSet{}, err
	}
	return postprocess.DetectionSet{Detections: d.suppressor.Suppress(candidates)}, nil
}

// Detect runs encode, infer, decode over one frame. This is the one-shot
// path used by the CLI image mode and the benchmark suite.
func (d *Detector) Detect(ctx context.Context, frame images.Frame) (postprocess.DetectionSet, error) {
	input, err := d.Encode(frame)
	if err != nil {
		return postprocess.DetectionSet{}, err
	}
	raw, err := d.Infer(ctx, input)
	if err != nil {
		return postprocess.DetectionSet{}, err
	}
	set, err := d.Decode(raw)
	if err != nil {
		return postprocess.DetectionSet{}, err
	}
	set.FrameSeq = frame.Seq
	set.Timestamp = frame.Timestamp
	return set, nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
