package benchmark

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// oneHitFactory builds stubs whose output decodes to exactly one detection
// per frame.
func oneHitFactory(Scenario) (inference.Engine, error) {
	out := tensor.New(tensor.WithShape(1, 2, 7), tensor.WithBacking([]float32{
		0.5, 0.5, 0.2, 0.2, 0.90, 0.1, 0.8,
		0.1, 0.1, 0.05, 0.05, 0.30, 0.2, 0.1,
	}))
	return &inference.Stub{Output: out}, nil
}

func TestRunScenarioWithStub(t *testing.T) {
	suite := NewSuite(logs.NewTestingLog(t), oneHitFactory, t.TempDir())
	scenario := NewScenario("quick").
		WithFrameSize(64, 48).
		WithInputSize(32).
		WithIterations(10).
		WithWarmupRuns(2).
		Build()

	m, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	assert.Greater(t, m.FramesPerSecond, 0.0)
	assert.Equal(t, 10, m.DetectionCount, "one detection per iteration")
	assert.Zero(t, m.ErrorRate)
	assert.Positive(t, m.NumCPU)

	lat := m.Latency
	assert.LessOrEqual(t, lat.Min, lat.P50)
	assert.LessOrEqual(t, lat.P50, lat.P90)
	assert.LessOrEqual(t, lat.P90, lat.P99)
	assert.LessOrEqual(t, lat.P99, lat.Max)
	assert.Positive(t, lat.Mean)

	assert.Len(t, suite.Results(), 1)
}

func TestRunScenarioRequiresIterations(t *testing.T) {
	suite := NewSuite(logs.NewTestingLog(t), nil, t.TempDir())
	_, err := suite.RunScenario(context.Background(), Scenario{Name: "empty"})
	assert.Error(t, err)
}

func TestSuiteSaveResults(t *testing.T) {
	outDir := t.TempDir()
	suite := NewSuite(logs.NewTestingLog(t), oneHitFactory, outDir)
	scenario := NewScenario("persisted").
		WithFrameSize(32, 32).
		WithInputSize(32).
		WithIterations(3).
		WithWarmupRuns(0).
		Build()
	_, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	require.NoError(t, suite.SaveResults())

	jsonFiles, err := filepath.Glob(filepath.Join(outDir, "benchmark_results_*.json"))
	require.NoError(t, err)
	require.Len(t, jsonFiles, 1)
	csvFiles, err := filepath.Glob(filepath.Join(outDir, "benchmark_summary_*.csv"))
	require.NoError(t, err)
	require.Len(t, csvFiles, 1)

	data, err := os.ReadFile(jsonFiles[0])
	require.NoError(t, err)
	var results []Metrics
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Scenario.Name)
}

func TestScenarioBuilderDefaults(t *testing.T) {
	s := NewScenario("defaults").Build()
	assert.Equal(t, inference.EngineStub, s.Engine)
	assert.Equal(t, images.ResolutionTypeVGA, s.Resolution.Name)
	assert.Equal(t, preprocess.DefaultInputSize, s.InputSize)
	assert.Equal(t, preprocess.ResizeStretch, s.ResizeMode)
	assert.Equal(t, 100, s.Iterations)
	assert.Equal(t, 10, s.WarmupRuns)
}

func TestScenarioSetRoundTrip(t *testing.T) {
	set := ResolutionSweep(inference.EngineStub, 320)
	require.NotEmpty(t, set.Scenarios)

	// Smallest first.
	first := set.Scenarios[0].Resolution
	last := set.Scenarios[len(set.Scenarios)-1].Resolution
	assert.Less(t, first.GetMegaPixels(), last.GetMegaPixels())

	path := filepath.Join(t.TempDir(), "scenarios.json")
	require.NoError(t, SaveScenarioSet(set, path))
	loaded, err := LoadScenarioSet(path)
	require.NoError(t, err)
	assert.Equal(t, set.Name, loaded.Name)
	require.Len(t, loaded.Scenarios, len(set.Scenarios))
	assert.Equal(t, set.Scenarios[0].Name, loaded.Scenarios[0].Name)
	assert.Equal(t, 320, loaded.Scenarios[0].InputSize)
}

func TestResizeModeComparison(t *testing.T) {
	vga, ok := images.GetResolutionByType(images.ResolutionTypeVGA)
	require.True(t, ok)
	set := ResizeModeComparison(inference.EngineStub, vga, 640)
	require.Len(t, set.Scenarios, 2)
	assert.Equal(t, preprocess.ResizeStretch, set.Scenarios[0].ResizeMode)
	assert.Equal(t, preprocess.ResizeLetterbox, set.Scenarios[1].ResizeMode)
}

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 10)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	assert.Equal(t, 5*time.Millisecond, percentile(samples, 50))
	assert.Equal(t, 9*time.Millisecond, percentile(samples, 90))
	assert.Equal(t, 10*time.Millisecond, percentile(samples, 99))
	assert.Equal(t, 1*time.Millisecond, percentile(samples, 0))
	assert.Equal(t, 10*time.Millisecond, percentile(samples, 100))
	assert.Zero(t, percentile(nil, 50))
}
