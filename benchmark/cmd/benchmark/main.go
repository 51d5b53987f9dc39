// Package main - rtdetect-bench: run reproducible pipeline benchmark
// scenarios and save the metrics as JSON and CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-rtdetect/benchmark"
	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/pkg/errors"
)

func main() {
	parser := argparse.NewParser("rtdetect-bench", "Benchmark the detection pipeline across scenarios")
	scenarioFile := parser.String("s", "scenarios", &argparse.Options{Help: "Scenario set JSON file (overrides the generator flags)", Default: ""})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Directory for result files", Default: "./benchmark_results"})
	engineName := parser.String("e", "engine", &argparse.Options{Help: "Engine for generated scenarios: stub or onnx", Default: "stub"})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "ONNX model artifact, required for the onnx engine", Default: ""})
	libraryPath := parser.String("", "library", &argparse.Options{Help: "onnxruntime shared library override", Default: ""})
	inputSize := parser.Int("", "input-size", &argparse.Options{Help: "Model canvas size for generated scenarios", Default: 640})
	quick := parser.Flag("q", "quick", &argparse.Options{Help: "Run a short smoke scenario", Default: false})
	resolutions := parser.Flag("r", "resolutions", &argparse.Options{Help: "Sweep every camera resolution standard", Default: false})
	resizeModes := parser.Flag("", "resize-modes", &argparse.Options{Help: "Compare stretch against letterbox at 1080p", Default: false})
	timeoutStr := parser.String("t", "timeout", &argparse.Options{Help: "Overall run timeout", Default: "30m"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	engineType, err := inference.ParseEngineType(*engineName)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if engineType == inference.EngineONNX && *modelPath == "" {
		logger.Errorf("The onnx engine needs a model artifact (-m)")
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		logger.Errorf("Invalid timeout %q: %v", *timeoutStr, err)
		os.Exit(1)
	}

	sets, err := buildSets(*scenarioFile, engineType, *inputSize, *quick, *resolutions, *resizeModes)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	factory := func(scenario benchmark.Scenario) (inference.Engine, error) {
		if scenario.Engine == inference.EngineStub {
			return &inference.Stub{}, nil
		}
		return inference.NewONNX(inference.ONNXConfig{
			ModelPath:   *modelPath,
			LibraryPath: *libraryPath,
			InputSize:   scenario.InputSize,
			Log:         logger,
		})
	}
	suite := benchmark.NewSuite(logger, factory, *outputDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	failed := false
	for _, set := range sets {
		if err := suite.RunSet(ctx, set); err != nil {
			logger.Errorf("Scenario set %q failed: %v", set.Name, err)
			failed = true
		}
	}

	if err := suite.SaveResults(); err != nil {
		logger.Errorf("Failed to save results: %v", err)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

// buildSets assembles scenario sets from a file or from the generator flags.
// With no selection it falls back to the quick smoke scenario.
func buildSets(scenarioFile string, engine inference.EngineType, inputSize int,
	quick, resolutions, resizeModes bool) ([]*benchmark.ScenarioSet, error) {
	if scenarioFile != "" {
		set, err := benchmark.LoadScenarioSet(scenarioFile)
		if err != nil {
			return nil, err
		}
		return []*benchmark.ScenarioSet{set}, nil
	}

	var sets []*benchmark.ScenarioSet
	if quick || (!resolutions && !resizeModes) {
		sets = append(sets, &benchmark.ScenarioSet{
			Name:        "Quick",
			Description: "Short smoke scenario over VGA frames",
			Scenarios: []benchmark.Scenario{
				benchmark.NewScenario("quick").
					WithEngine(engine).
					WithInputSize(inputSize).
					WithIterations(50).
					WithWarmupRuns(5).
					Build(),
			},
		})
	}
	if resolutions {
		sets = append(sets, benchmark.ResolutionSweep(engine, inputSize))
	}
	if resizeModes {
		fhd, ok := images.GetResolutionByType(images.ResolutionTypeFHD1080p)
		if !ok {
			return nil, errors.New("1080p resolution is not defined")
		}
		sets = append(sets, benchmark.ResizeModeComparison(engine, fhd, inputSize))
	}
	return sets, nil
}
