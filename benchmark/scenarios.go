// Package benchmark - reproducible performance scenarios for the detection
// pipeline.
package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/pkg/errors"
)

// Scenario defines one benchmark configuration: which engine processes
// frames of which resolution, fitted onto the model canvas how, and for how
// many iterations.
type Scenario struct {
	Name       string                `json:"name"`
	Engine     inference.EngineType  `json:"engine"`
	Resolution images.Resolution     `json:"resolution"`
	InputSize  int                   `json:"input_size"`
	ResizeMode preprocess.ResizeMode `json:"resize_mode"`
	Iterations int                   `json:"iterations"`
	WarmupRuns int                   `json:"warmup_runs"`
}

// ScenarioBuilder builds scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenario starts a builder with the house defaults: stub engine, VGA
// frames, 640 canvas, stretch resize, 100 iterations after 10 warmups.
func NewScenario(name string) *ScenarioBuilder {
	vga, _ := images.GetResolutionByType(images.ResolutionTypeVGA)
	return &ScenarioBuilder{scenario: Scenario{
		Name:       name,
		Engine:     inference.EngineStub,
		Resolution: vga,
		InputSize:  preprocess.DefaultInputSize,
		ResizeMode: preprocess.ResizeStretch,
		Iterations: 100,
		WarmupRuns: 10,
	}}
}

// WithEngine sets the engine type
func (sb *ScenarioBuilder) WithEngine(engine inference.EngineType) *ScenarioBuilder {
	sb.scenario.Engine = engine
	return sb
}

// WithResolution sets the source frame resolution
func (sb *ScenarioBuilder) WithResolution(res images.Resolution) *ScenarioBuilder {
	sb.scenario.Resolution = res
	return sb
}

// WithFrameSize sets an ad hoc source frame resolution
func (sb *ScenarioBuilder) WithFrameSize(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = images.Resolution{
		Name:   images.ResolutionType(fmt.Sprintf("%dx%d", width, height)),
		Pixels: images.ResolutionPixels{Width: width, Height: height},
	}
	return sb
}

// WithInputSize sets the model canvas size
func (sb *ScenarioBuilder) WithInputSize(size int) *ScenarioBuilder {
	sb.scenario.InputSize = size
	return sb
}

// WithResizeMode sets how frames are fitted onto the canvas
func (sb *ScenarioBuilder) WithResizeMode(mode preprocess.ResizeMode) *ScenarioBuilder {
	sb.scenario.ResizeMode = mode
	return sb
}

// WithIterations sets the number of timed iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of untimed warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet is a named collection of related scenarios.
type ScenarioSet struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Scenarios   []Scenario `json:"scenarios"`
}

// ResolutionSweep builds one scenario per camera resolution standard, from
// smallest to largest, all against the same engine and canvas.
func ResolutionSweep(engine inference.EngineType, inputSize int) *ScenarioSet {
	all := images.GetAllResolutions()
	sort.Slice(all, func(i, j int) bool {
		return all[i].GetMegaPixels() < all[j].GetMegaPixels()
	})

	scenarios := make([]Scenario, 0, len(all))
	for _, res := range all {
		scenarios = append(scenarios, NewScenario(fmt.Sprintf("resolution_%s", res.Name)).
			WithEngine(engine).
			WithResolution(res).
			WithInputSize(inputSize).
			Build())
	}
	return &ScenarioSet{
		Name:        "Resolution Sweep",
		Description: "Measures how source resolution affects end-to-end frame cost",
		Scenarios:   scenarios,
	}
}

// ResizeModeComparison builds a stretch and a letterbox scenario for the
// same frames, isolating the cost and effect of aspect-preserving encode.
func ResizeModeComparison(engine inference.EngineType, res images.Resolution, inputSize int) *ScenarioSet {
	modes := []preprocess.ResizeMode{preprocess.ResizeStretch, preprocess.ResizeLetterbox}
	scenarios := make([]Scenario, 0, len(modes))
	for _, mode := range modes {
		scenarios = append(scenarios, NewScenario(fmt.Sprintf("resize_%s_%s", mode, res.Name)).
			WithEngine(engine).
			WithResolution(res).
			WithInputSize(inputSize).
			WithResizeMode(mode).
			Build())
	}
	return &ScenarioSet{
		Name:        fmt.Sprintf("Resize Mode Comparison @ %s", res.Name),
		Description: "Compares stretch against letterbox encoding for the same frames",
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet writes a scenario set to a JSON file.
func SaveScenarioSet(set *ScenarioSet, filename string) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal scenario set")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "write scenario file")
	}
	return nil
}

// LoadScenarioSet reads a scenario set from a JSON file.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	var set ScenarioSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrap(err, "unmarshal scenario set")
	}
	return &set, nil
}
