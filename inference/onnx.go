// Package inference - ONNX Runtime engine.
package inference

import (
	"context"
	"runtime"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Tensor name and shape defaults follow the ultralytics YOLO export
// convention: one image input, one [1, rows, 4+1+classes] output.
const (
	DefaultInputName  = "images"
	DefaultOutputName = "output0"
	DefaultInputSize  = 640
	DefaultOutputRows = 25200
	DefaultOutputCols = 85 // 4 box params + objectness + 80 COCO classes
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime points onnxruntime at its shared library and initializes the
// native environment. Required once per process.
func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath == "" {
			libraryPath = DefaultLibraryPath()
		}
		ort.SetSharedLibraryPath(libraryPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// DefaultLibraryPath returns the expected onnxruntime shared library location
// for the current platform, relative to the working directory.
func DefaultLibraryPath() string {
	if runtime.GOOS == "darwin" {
		return "./third_party/libonnxruntime.dylib"
	}
	if runtime.GOOS == "linux" && runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}

// ONNXConfig describes the model artifact and its fixed tensor layout.
type ONNXConfig struct {
	// ModelPath is the .onnx artifact on disk.
	ModelPath string
	// LibraryPath overrides the onnxruntime shared library location.
	// Empty uses DefaultLibraryPath. Only the first engine created in a
	// process gets a say; the native environment is global.
	LibraryPath string
	// InputName and OutputName are the graph tensor names. Defaults
	// "images" and "output0".
	InputName  string
	OutputName string
	// InputSize is the model canvas size S; the input tensor is [1,3,S,S].
	InputSize int
	// OutputRows and OutputCols fix the raw output shape [1, rows, cols],
	// cols = 4+1+classes.
	OutputRows int
	OutputCols int
	// IntraOpThreads caps parallelism within graph nodes. Zero lets the
	// runtime decide.
	IntraOpThreads int
	// Log receives engine lifecycle messages. May be nil.
	Log logs.Log
}

// ONNX runs a detection model through onnxruntime. One engine owns one
// session with fixed input/output tensors, so Infer is not safe for
// concurrent use; the scheduler's single-flight discipline satisfies that.
type ONNX struct {
	cfg     ONNXConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNX loads the model and prepares a session. All failures come back as
// *ModelLoadError: callers are expected to carry on without detection rather
// than crash.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.InputName == "" {
		cfg.InputName = DefaultInputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = DefaultOutputName
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.OutputRows <= 0 {
		cfg.OutputRows = DefaultOutputRows
	}
	if cfg.OutputCols <= 0 {
		cfg.OutputCols = DefaultOutputCols
	}
	if cfg.OutputCols < 5 {
		return nil, &ModelLoadError{ModelPath: cfg.ModelPath,
			Err: errors.Errorf("output cols %d cannot hold cx, cy, w, h, obj", cfg.OutputCols)}
	}

	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, &ModelLoadError{ModelPath: cfg.ModelPath,
			Err: errors.Wrap(err, "initializing onnxruntime environment")}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &ModelLoadError{ModelPath: cfg.ModelPath,
			Err: errors.Wrap(err, "creating session options")}
	}
	defer options.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, &ModelLoadError{ModelPath: cfg.ModelPath,
				Err: errors.Wrap(err, "setting intra-op threads")}
		}
	}

	s := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s))
	if err != nil {
		return nil, &ModelLoadError{ModelPath: cfg.ModelPath,
			Err: errors.Wrap(err, "creating input tensor")}
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.OutputRows), int64(cfg.OutputCols)))
	if err != nil {
		input.Destroy()
		return nil, &ModelLoadError{ModelPath: cfg.ModelPath,
			Err: errors.Wrap(err, "creating output tensor")}
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, &ModelLoadError{ModelPath: cfg.ModelPath, Err: err}
	}

	if cfg.Log != nil {
		cfg.Log.Infof("Loaded model %s: %s [1,3,%d,%d] -> %s [1,%d,%d], %d intra-op threads",
			cfg.ModelPath, cfg.InputName, cfg.InputSize, cfg.InputSize,
			cfg.OutputName, cfg.OutputRows, cfg.OutputCols, cfg.IntraOpThreads)
	}
	return &ONNX{cfg: cfg, session: session, input: input, output: output}, nil
}

// Infer copies the encoded input into the session's input tensor, runs the
// model, and returns the output copied into a fresh [1, rows, cols] tensor.
// The session output buffer is reused across calls, so the copy keeps
// results independent of later cycles.
func (o *ONNX) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{Err: err}
	}
	if input == nil {
		return nil, &InferenceError{Err: errors.New("input tensor is nil")}
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, &InferenceError{Err: errors.Errorf("input dtype is %v, want float32", input.Dtype())}
	}
	dst := o.input.GetData()
	if len(data) != len(dst) {
		return nil, &InferenceError{
			Err: errors.Errorf("input carries %d values, session expects %d", len(data), len(dst))}
	}

	copy(dst, data)
	if err := o.session.Run(); err != nil {
		return nil, &InferenceError{Err: err}
	}

	raw := o.output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	return tensor.New(
		tensor.WithShape(1, o.cfg.OutputRows, o.cfg.OutputCols),
		tensor.WithBacking(out),
	), nil
}

// Close destroys the session and its tensors, session first so nothing
// holds a reference to a freed value. Safe to call more than once.
func (o *ONNX) Close() error {
	var first error
	if o.session != nil {
		if err := o.session.Destroy(); err != nil && first == nil {
			first = err
		}
		o.session = nil
	}
	if o.output != nil {
		if err := o.output.Destroy(); err != nil && first == nil {
			first = err
		}
		o.output = nil
	}
	if o.input != nil {
		if err := o.input.Destroy(); err != nil && first == nil {
			first = err
		}
		o.input = nil
	}
	return first
}
