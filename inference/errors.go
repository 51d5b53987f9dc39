// Package inference - Engine failure taxonomy.
package inference

import "fmt"

// ModelLoadError indicates the model artifact could not be loaded: file
// missing, graph corrupt, runtime unavailable. It is reported once at
// startup; detection stays unavailable but the host process lives on.
type ModelLoadError struct {
	ModelPath string
	Err       error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("loading model %s: %v", e.ModelPath, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError indicates a forward pass failed. Per-cycle: the scheduler
// publishes an empty result for the cycle and keeps going.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
