// Package inference - Engine selection by name.
package inference

import "github.com/pkg/errors"

// EngineType is the type of the engine
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library
	EngineONNX EngineType = "onnx"
	// EngineStub is the deterministic in-process engine used by tests,
	// benchmarks and camera-only demos
	EngineStub EngineType = "stub"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineONNX, EngineStub}

// ParseEngineType validates an engine name from config or CLI input.
func ParseEngineType(name string) (EngineType, error) {
	for _, e := range Engines {
		if string(e) == name {
			return e, nil
		}
	}
	return "", errors.Errorf("unknown engine %q, supported engines are %v", name, Engines)
}
