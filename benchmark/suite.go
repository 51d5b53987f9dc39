// Package benchmark - scenario execution.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-rtdetect/capture"
	"github.com/nvr-ai/go-rtdetect/detector"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/pkg/errors"
)

// EngineFactory builds the inference engine a scenario asks for. Keeping
// construction outside the suite lets tests run everything against stubs
// while the CLI supplies real ONNX sessions.
type EngineFactory func(scenario Scenario) (inference.Engine, error)

// StubEngineFactory returns a zero-config deterministic engine for any
// scenario. It is the default when no factory is given.
func StubEngineFactory(Scenario) (inference.Engine, error) {
	return &inference.Stub{}, nil
}

// Suite runs benchmark scenarios and accumulates their metrics.
type Suite struct {
	log       logs.Log
	newEngine EngineFactory
	outputDir string

	mu      sync.RWMutex
	results []Metrics
}

// NewSuite creates a suite. A nil factory benchmarks against the stub
// engine, which isolates the pipeline's own cost from model cost.
func NewSuite(log logs.Log, newEngine EngineFactory, outputDir string) *Suite {
	if newEngine == nil {
		newEngine = StubEngineFactory
	}
	return &Suite{
		log:       log,
		newEngine: newEngine,
		outputDir: outputDir,
	}
}

// RunScenario executes one scenario: synthetic frames at the scenario's
// resolution, encoded and detected one at a time, warmups untimed.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*Metrics, error) {
	if scenario.Iterations <= 0 {
		return nil, errors.Errorf("scenario %q has no iterations", scenario.Name)
	}

	engine, err := s.newEngine(scenario)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s engine for %q", scenario.Engine, scenario.Name)
	}
	defer engine.Close()

	det, err := detector.New(detector.Config{
		Engine: engine,
		Encoder: preprocess.NewEncoder(preprocess.Config{
			InputSize: scenario.InputSize,
			Mode:      scenario.ResizeMode,
		}),
	})
	if err != nil {
		return nil, err
	}

	source := capture.NewSynthetic(scenario.Resolution.Pixels.Width, scenario.Resolution.Pixels.Height)

	for i := 0; i < scenario.WarmupRuns; i++ {
		frame, _ := source.Frame()
		if _, err := det.Detect(ctx, frame); err != nil {
			return nil, errors.Wrapf(err, "warmup run for %q", scenario.Name)
		}
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	latencies := make([]time.Duration, 0, scenario.Iterations)
	totalDetections := 0
	failures := 0
	start := time.Now()
	for i := 0; i < scenario.Iterations; i++ {
		frame, _ := source.Frame()
		iterStart := time.Now()
		set, err := det.Detect(ctx, frame)
		if err != nil {
			failures++
			continue
		}
		latencies = append(latencies, time.Since(iterStart))
		totalDetections += set.Len()
	}
	total := time.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics := &Metrics{
		Scenario:        scenario,
		Timestamp:       start,
		TotalDuration:   total,
		FramesPerSecond: float64(scenario.Iterations) / total.Seconds(),
		Latency:         summarizeLatencies(latencies),
		MemoryStats: MemoryMetrics{
			AllocBytes:      endMem.Alloc,
			TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
			SysBytes:        endMem.Sys,
			NumGC:           endMem.NumGC - startMem.NumGC,
			HeapAllocBytes:  endMem.HeapAlloc,
			HeapSysBytes:    endMem.HeapSys,
		},
		NumCPU:         runtime.NumCPU(),
		DetectionCount: totalDetections,
		ErrorRate:      float64(failures) / float64(scenario.Iterations),
	}

	s.mu.Lock()
	s.results = append(s.results, *metrics)
	s.mu.Unlock()

	s.log.Infof("Scenario %s: %.1f FPS, p50 %v, p99 %v, %d detections",
		scenario.Name, metrics.FramesPerSecond, metrics.Latency.P50, metrics.Latency.P99, totalDetections)
	return metrics, nil
}

// RunSet executes every scenario in the set, skipping ones that fail.
func (s *Suite) RunSet(ctx context.Context, set *ScenarioSet) error {
	s.log.Infof("Running scenario set %q: %d scenarios", set.Name, len(set.Scenarios))
	failures := 0
	for _, scenario := range set.Scenarios {
		if _, err := s.RunScenario(ctx, scenario); err != nil {
			s.log.Warnf("Scenario %s failed: %v", scenario.Name, err)
			failures++
		}
	}
	if failures == len(set.Scenarios) && failures > 0 {
		return errors.Errorf("every scenario in %q failed", set.Name)
	}
	return nil
}

// Results returns a copy of the accumulated metrics.
func (s *Suite) Results() []Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]Metrics, len(s.results))
	copy(results, s.results)
	return results
}

// SaveResults writes the accumulated metrics to the output directory: full
// detail as JSON plus a one-line-per-scenario CSV summary.
func (s *Suite) SaveResults() error {
	results := s.Results()
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	stamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", stamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return errors.Wrap(err, "write results file")
	}

	summaryFile := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", stamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return errors.Wrap(err, "write summary CSV")
	}

	s.log.Infof("Results saved to %s and %s", resultsFile, summaryFile)
	return nil
}

func saveSummaryCSV(filename string, results []Metrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	header := "Scenario,Engine,Resolution,Resize,FPS,P50_ms,P99_ms,Alloc_MB,Detections,Error_Rate\n"
	if _, err := file.WriteString(header); err != nil {
		return err
	}
	for _, r := range results {
		line := fmt.Sprintf("%s,%s,%s,%s,%.2f,%.3f,%.3f,%.2f,%d,%.4f\n",
			r.Scenario.Name,
			r.Scenario.Engine,
			r.Scenario.Resolution.Name,
			r.Scenario.ResizeMode,
			r.FramesPerSecond,
			float64(r.Latency.P50.Nanoseconds())/1e6,
			float64(r.Latency.P99.Nanoseconds())/1e6,
			float64(r.MemoryStats.AllocBytes)/(1024*1024),
			r.DetectionCount,
			r.ErrorRate,
		)
		if _, err := file.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}
