// Package main - rtdetect demo: run the detection pipeline over a webcam, a
// directory of stills or synthetic frames, and print published detection
// sets until interrupted. A single image can also be processed one-shot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-rtdetect/capture"
	"github.com/nvr-ai/go-rtdetect/config"
	"github.com/nvr-ai/go-rtdetect/detector"
	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/labels"
	"github.com/nvr-ai/go-rtdetect/postprocess"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/nvr-ai/go-rtdetect/profiler"
	"github.com/nvr-ai/go-rtdetect/scheduler"
	"github.com/nvr-ai/go-rtdetect/util"
	"github.com/pkg/errors"
)

func main() {
	parser := argparse.NewParser("rtdetect", "Real-time object detection over a video stream")
	configPath := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file", Default: ""})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "ONNX model artifact", Default: ""})
	labelsPath := parser.String("l", "labels", &argparse.Options{Help: "Class label file, one label per line (built-in COCO set when empty)", Default: ""})
	engineName := parser.String("e", "engine", &argparse.Options{Help: "Inference engine: onnx or stub", Default: ""})
	sourceName := parser.String("s", "source", &argparse.Options{Help: "Frame source: webcam, stills or synthetic", Default: ""})
	device := parser.String("d", "device", &argparse.Options{Help: "Webcam device ID or video file path", Default: ""})
	stillsDir := parser.String("", "stills", &argparse.Options{Help: "Directory of frame-numbered images for the stills source", Default: ""})
	imagePath := parser.String("i", "image", &argparse.Options{Help: "Run one detection pass over a single image and exit", Default: ""})
	confidence := parser.Float("", "confidence", &argparse.Options{Help: "Objectness threshold in [0,1]", Default: -1.0})
	iou := parser.Float("", "iou", &argparse.Options{Help: "Suppression overlap threshold in [0,1]", Default: -1.0})
	showProfile := parser.Flag("p", "profile", &argparse.Options{Help: "Print per-stage timings on exit", Default: false})
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

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	// Command line flags override the file.
	if *modelPath != "" {
		cfg.ModelPath = modelPath
	}
	if *labelsPath != "" {
		cfg.LabelsPath = labelsPath
	}
	if *engineName != "" {
		cfg.Engine = engineName
	}
	if *sourceName != "" {
		cfg.Source = sourceName
	}
	if *device != "" {
		cfg.Device = device
	}
	if *stillsDir != "" {
		cfg.StillsDir = stillsDir
		if cfg.Source == nil {
			stills := string(capture.SourceStills)
			cfg.Source = &stills
		}
	}
	if *confidence >= 0 {
		cfg.ConfidenceThreshold = confidence
	}
	if *iou >= 0 {
		cfg.IOUThreshold = iou
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	table := labels.COCO()
	if path := cfg.GetLabelsPath(); path != "" {
		table, err = labels.Load(path)
		if err != nil {
			logger.Errorf("Failed to load labels: %v", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := buildEngine(logger, cfg)
	if err != nil {
		logger.Errorf("Model load failed, detection is unavailable: %v", err)
		if *imagePath != "" {
			os.Exit(1)
		}
		// Startup failure of the model is terminal for detection but
		// not for the process.
		<-ctx.Done()
		return
	}
	defer engine.Close()

	det, err := detector.New(detector.Config{
		Engine: engine,
		Encoder: preprocess.NewEncoder(preprocess.Config{
			InputSize: cfg.GetInputSize(),
			Mode:      cfg.GetResizeMode(),
		}),
		Decoder: postprocess.NewDecoder(postprocess.DecoderConfig{
			ConfidenceThreshold: cfg.GetConfidenceThreshold(),
			InputSize:           cfg.GetInputSize(),
			Labels:              table,
		}),
		Suppressor: postprocess.NewSuppressor(postprocess.SuppressorConfig{
			IOUThreshold: cfg.GetIOUThreshold(),
			Mode:         cfg.GetNMSMode(),
		}),
	})
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	if *imagePath != "" {
		if err := detectImage(logger, det, *imagePath); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}

	source, err := openSource(logger, cfg)
	if err != nil {
		logger.Errorf("Failed to open frame source: %v", err)
		os.Exit(1)
	}
	defer source.Close()

	prof := profiler.NewPipeline()
	sched, err := scheduler.New(scheduler.Config{
		Log:          logger,
		Source:       source,
		Pipeline:     det,
		MinInterval:  cfg.GetMinInterval(),
		TickInterval: cfg.GetTickInterval(),
		Profiler:     prof,
	})
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	watcher := sched.AddWatcher()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case update := <-watcher:
				printUpdate(logger, update)
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	wg.Wait()

	stats := sched.Stats()
	logger.Infof("Cycles: %v completed, %v failed, %v ticks dropped",
		stats.CompletedCycles, stats.FailedCycles, stats.DroppedTicks)
	if *showProfile {
		fmt.Println(prof.Snapshot())
	}
}

// buildEngine selects the inference engine. The stub needs no artifacts and
// exists so the rest of the pipeline can run on machines without a model or
// the onnxruntime library.
func buildEngine(logger logs.Log, cfg *config.Config) (inference.Engine, error) {
	switch cfg.GetEngine() {
	case inference.EngineStub:
		return &inference.Stub{}, nil
	default:
		return inference.NewONNX(inference.ONNXConfig{
			ModelPath:      cfg.GetModelPath(),
			LibraryPath:    cfg.GetLibraryPath(),
			InputName:      cfg.GetInputName(),
			OutputName:     cfg.GetOutputName(),
			InputSize:      cfg.GetInputSize(),
			OutputRows:     cfg.GetOutputRows(),
			OutputCols:     cfg.GetOutputCols(),
			IntraOpThreads: cfg.GetIntraOpThreads(),
			Log:            logger,
		})
	}
}

// openSource builds the configured frame source.
func openSource(logger logs.Log, cfg *config.Config) (capture.Source, error) {
	switch cfg.GetSource() {
	case capture.SourceStills:
		return capture.OpenStills(cfg.GetStillsDir())
	case capture.SourceSynthetic:
		return capture.NewSynthetic(cfg.GetSyntheticWidth(), cfg.GetSyntheticHeight()), nil
	default:
		return capture.OpenWebcam(logger, cfg.GetDevice())
	}
}

// detectImage runs the pipeline once over a single image file and prints
// what it found.
func detectImage(logger logs.Log, det *detector.Detector, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read image %v", path)
	}
	img, err := util.ImageFile{Path: path, Data: data}.Decode()
	if err != nil {
		return err
	}

	start := time.Now()
	set, err := det.Detect(context.Background(), images.Frame{
		Seq:       1,
		Image:     img,
		Timestamp: start,
	})
	if err != nil {
		return err
	}

	logger.Infof("%v: %v detections in %v", path, set.Len(), time.Since(start).Round(time.Millisecond))
	for _, d := range set.Detections {
		fmt.Println(d)
	}
	return nil
}

// printUpdate reports a published detection set. Empty sets are the steady
// state on a quiet scene, so only sets with content are printed.
func printUpdate(logger logs.Log, update scheduler.Update) {
	if update.Set.Len() == 0 {
		return
	}
	logger.Infof("frame %v: %v detections", update.Set.FrameSeq, update.Set.Len())
	for _, d := range update.Set.Detections {
		logger.Infof("  %v", d)
	}
}
