// Package config loads pipeline settings from a JSON file. Fields are
// pointers so a partial file only overrides what it names; the Get accessors
// fall back to the built-in defaults for everything else.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-rtdetect/capture"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/postprocess"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/nvr-ai/go-rtdetect/scheduler"
	"github.com/pkg/errors"
)

// DefaultModelPath is the model artifact loaded when the file names none.
const DefaultModelPath = "yolov5s.onnx"

// DefaultDevice selects the first camera.
const DefaultDevice = "0"

// Config is the root pipeline configuration. Every field is optional in the
// file.
type Config struct {
	// Detection tuning
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	IOUThreshold        *float64 `json:"iou_threshold,omitempty"`
	NMSMode             *string  `json:"nms_mode,omitempty"` // "first-match" or "greedy"

	// Model input geometry
	InputSize  *int    `json:"input_size,omitempty"`
	ResizeMode *string `json:"resize_mode,omitempty"` // "stretch" or "letterbox"

	// Scheduling
	MinInterval  *string `json:"min_interval,omitempty"`  // duration string like "110ms"
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "16ms"

	// Engine
	Engine         *string `json:"engine,omitempty"` // "onnx" or "stub"
	ModelPath      *string `json:"model_path,omitempty"`
	LabelsPath     *string `json:"labels_path,omitempty"` // empty: built-in COCO table
	LibraryPath    *string `json:"library_path,omitempty"`
	InputName      *string `json:"input_name,omitempty"`
	OutputName     *string `json:"output_name,omitempty"`
	OutputRows     *int    `json:"output_rows,omitempty"`
	OutputCols     *int    `json:"output_cols,omitempty"`
	IntraOpThreads *int    `json:"intra_op_threads,omitempty"`

	// Capture
	Source          *string `json:"source,omitempty"` // "webcam", "stills" or "synthetic"
	Device          *string `json:"device,omitempty"` // camera ID or video file path
	StillsDir       *string `json:"stills_dir,omitempty"`
	SyntheticWidth  *int    `json:"synthetic_width,omitempty"`
	SyntheticHeight *int    `json:"synthetic_height,omitempty"`
}

// Default returns a Config with every field unset; the Get accessors supply
// the fallbacks.
func Default() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Fields omitted from the file keep
// their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	// Cap the file size before reading; a config is never this large.
	const maxFileSize = 1 * 1024 * 1024
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "stat config file")
	}
	if info.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks every set field. Unset fields are always valid.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return errors.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}
	if c.IOUThreshold != nil {
		if *c.IOUThreshold < 0 || *c.IOUThreshold > 1 {
			return errors.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IOUThreshold)
		}
	}
	if c.NMSMode != nil {
		switch postprocess.SuppressionMode(*c.NMSMode) {
		case postprocess.ModeFirstMatch, postprocess.ModeGreedy:
		default:
			return errors.Errorf("nms_mode must be %q or %q, got %q",
				postprocess.ModeFirstMatch, postprocess.ModeGreedy, *c.NMSMode)
		}
	}
	if c.InputSize != nil && *c.InputSize <= 0 {
		return errors.Errorf("input_size must be positive, got %d", *c.InputSize)
	}
	if c.ResizeMode != nil {
		switch preprocess.ResizeMode(*c.ResizeMode) {
		case preprocess.ResizeStretch, preprocess.ResizeLetterbox:
		default:
			return errors.Errorf("resize_mode must be %q or %q, got %q",
				preprocess.ResizeStretch, preprocess.ResizeLetterbox, *c.ResizeMode)
		}
	}
	if err := validateDuration("min_interval", c.MinInterval); err != nil {
		return err
	}
	if err := validateDuration("tick_interval", c.TickInterval); err != nil {
		return err
	}
	if c.Engine != nil {
		if _, err := inference.ParseEngineType(*c.Engine); err != nil {
			return err
		}
	}
	if c.OutputRows != nil && *c.OutputRows <= 0 {
		return errors.Errorf("output_rows must be positive, got %d", *c.OutputRows)
	}
	if c.OutputCols != nil && *c.OutputCols < 5 {
		return errors.Errorf("output_cols must be at least 5, got %d", *c.OutputCols)
	}
	if c.IntraOpThreads != nil && *c.IntraOpThreads < 0 {
		return errors.Errorf("intra_op_threads must be non-negative, got %d", *c.IntraOpThreads)
	}
	if c.Source != nil {
		if _, err := capture.ParseSourceType(*c.Source); err != nil {
			return err
		}
	}
	if c.GetSource() == capture.SourceStills && c.GetStillsDir() == "" {
		return errors.New("stills source requires stills_dir")
	}
	if c.SyntheticWidth != nil && *c.SyntheticWidth <= 0 {
		return errors.Errorf("synthetic_width must be positive, got %d", *c.SyntheticWidth)
	}
	if c.SyntheticHeight != nil && *c.SyntheticHeight <= 0 {
		return errors.Errorf("synthetic_height must be positive, got %d", *c.SyntheticHeight)
	}
	return nil
}

func validateDuration(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s %q", field, *v)
	}
	if d <= 0 {
		return errors.Errorf("%s must be positive, got %q", field, *v)
	}
	return nil
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *Config) GetConfidenceThreshold() float32 {
	if c.ConfidenceThreshold == nil {
		return postprocess.DefaultConfidenceThreshold
	}
	return float32(*c.ConfidenceThreshold)
}

// GetIOUThreshold returns the iou_threshold value or the default.
func (c *Config) GetIOUThreshold() float32 {
	if c.IOUThreshold == nil {
		return postprocess.DefaultIOUThreshold
	}
	return float32(*c.IOUThreshold)
}

// GetNMSMode returns the nms_mode value or the default.
func (c *Config) GetNMSMode() postprocess.SuppressionMode {
	if c.NMSMode == nil || *c.NMSMode == "" {
		return postprocess.ModeFirstMatch
	}
	return postprocess.SuppressionMode(*c.NMSMode)
}

// GetInputSize returns the input_size value or the default.
func (c *Config) GetInputSize() int {
	if c.InputSize == nil {
		return preprocess.DefaultInputSize
	}
	return *c.InputSize
}

// GetResizeMode returns the resize_mode value or the default.
func (c *Config) GetResizeMode() preprocess.ResizeMode {
	if c.ResizeMode == nil || *c.ResizeMode == "" {
		return preprocess.ResizeStretch
	}
	return preprocess.ResizeMode(*c.ResizeMode)
}

// GetMinInterval parses and returns the min_interval as a time.Duration.
func (c *Config) GetMinInterval() time.Duration {
	if c.MinInterval == nil || *c.MinInterval == "" {
		return scheduler.DefaultMinInterval
	}
	d, err := time.ParseDuration(*c.MinInterval)
	if err != nil {
		return scheduler.DefaultMinInterval
	}
	return d
}

// GetTickInterval parses and returns the tick_interval as a time.Duration.
func (c *Config) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return scheduler.DefaultTickInterval
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return scheduler.DefaultTickInterval
	}
	return d
}

// GetEngine returns the engine value or the default.
func (c *Config) GetEngine() inference.EngineType {
	if c.Engine == nil || *c.Engine == "" {
		return inference.EngineONNX
	}
	engine, err := inference.ParseEngineType(*c.Engine)
	if err != nil {
		return inference.EngineONNX
	}
	return engine
}

// GetModelPath returns the model_path value or the default.
func (c *Config) GetModelPath() string {
	if c.ModelPath == nil || *c.ModelPath == "" {
		return DefaultModelPath
	}
	return *c.ModelPath
}

// GetLabelsPath returns the labels_path value; empty selects the built-in
// COCO table.
func (c *Config) GetLabelsPath() string {
	if c.LabelsPath == nil {
		return ""
	}
	return *c.LabelsPath
}

// GetLibraryPath returns the library_path value; empty selects the
// platform default.
func (c *Config) GetLibraryPath() string {
	if c.LibraryPath == nil {
		return ""
	}
	return *c.LibraryPath
}

// GetInputName returns the input_name value or the default.
func (c *Config) GetInputName() string {
	if c.InputName == nil || *c.InputName == "" {
		return inference.DefaultInputName
	}
	return *c.InputName
}

// GetOutputName returns the output_name value or the default.
func (c *Config) GetOutputName() string {
	if c.OutputName == nil || *c.OutputName == "" {
		return inference.DefaultOutputName
	}
	return *c.OutputName
}

// GetOutputRows returns the output_rows value or the default.
func (c *Config) GetOutputRows() int {
	if c.OutputRows == nil {
		return inference.DefaultOutputRows
	}
	return *c.OutputRows
}

// GetOutputCols returns the output_cols value or the default.
func (c *Config) GetOutputCols() int {
	if c.OutputCols == nil {
		return inference.DefaultOutputCols
	}
	return *c.OutputCols
}

// GetIntraOpThreads returns the intra_op_threads value or the default of 0,
// which leaves threading to the runtime.
func (c *Config) GetIntraOpThreads() int {
	if c.IntraOpThreads == nil {
		return 0
	}
	return *c.IntraOpThreads
}

// GetSource returns the source value or the default.
func (c *Config) GetSource() capture.SourceType {
	if c.Source == nil || *c.Source == "" {
		return capture.SourceWebcam
	}
	source, err := capture.ParseSourceType(*c.Source)
	if err != nil {
		return capture.SourceWebcam
	}
	return source
}

// GetDevice returns the device value or the default.
func (c *Config) GetDevice() string {
	if c.Device == nil || *c.Device == "" {
		return DefaultDevice
	}
	return *c.Device
}

// GetStillsDir returns the stills_dir value.
func (c *Config) GetStillsDir() string {
	if c.StillsDir == nil {
		return ""
	}
	return *c.StillsDir
}

// GetSyntheticWidth returns the synthetic_width value or the default.
func (c *Config) GetSyntheticWidth() int {
	if c.SyntheticWidth == nil {
		return 640
	}
	return *c.SyntheticWidth
}

// GetSyntheticHeight returns the synthetic_height value or the default.
func (c *Config) GetSyntheticHeight() int {
	if c.SyntheticHeight == nil {
		return 480
	}
	return *c.SyntheticHeight
}
