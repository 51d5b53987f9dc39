// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"

	"gorgonia.org/tensor"
)

// Engine runs a detection model over encoded input tensors. The model is an
// opaque artifact: callers hand in a [1, 3, S, S] input and get the raw
// [1, N, 4+1+C] output back, uninterpreted.
//
// Engines need not support concurrent Infer calls; the scheduler runs at
// most one cycle at a time.
type Engine interface {
	// Infer runs one forward pass. The context is honored before the pass
	// starts; a pass already running is not cancelable.
	Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	// Close releases engine resources. Safe to call more than once.
	Close() error
}
