// Package inference - Deterministic engine for tests, benchmarks and
// camera-only demos.
package inference

import (
	"context"
	"sync/atomic"
	"time"

	"gorgonia.org/tensor"
)

// Stub is an Engine returning canned output with no model behind it.
// Configure its fields before first use; the zero value returns a single
// all-background row from every call.
type Stub struct {
	// Output is returned from every Infer call when Generate is nil.
	Output *tensor.Dense
	// Generate, when set, builds the output per call. The call index
	// starts at 1.
	Generate func(call int64, input *tensor.Dense) *tensor.Dense
	// Err, when set, fails every Infer call with an InferenceError
	// wrapping it.
	Err error
	// Latency is waited out before each call returns, for pacing tests
	// against a real clock.
	Latency time.Duration

	calls atomic.Int64
}

// Infer implements Engine.
func (s *Stub) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	call := s.calls.Add(1)
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return nil, &InferenceError{Err: ctx.Err()}
		}
	}
	if s.Err != nil {
		return nil, &InferenceError{Err: s.Err}
	}
	if s.Generate != nil {
		return s.Generate(call, input), nil
	}
	if s.Output != nil {
		return s.Output, nil
	}
	return emptyOutput(), nil
}

// Calls returns how many times Infer has been invoked.
func (s *Stub) Calls() int64 {
	return s.calls.Load()
}

// Close implements Engine. The stub holds no resources.
func (s *Stub) Close() error {
	return nil
}

// emptyOutput is one all-zero row: objectness 0, so it decodes to no
// detections.
func emptyOutput() *tensor.Dense {
	return tensor.New(tensor.WithShape(1, 1, 6), tensor.WithBacking(make([]float32, 6)))
}
