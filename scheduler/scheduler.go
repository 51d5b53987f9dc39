// Package scheduler drives the detection pipeline over a live frame source:
// one cycle in flight, stale frames dropped, results published to a one-slot
// cell plus watcher channels.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/postprocess"
	"github.com/nvr-ai/go-rtdetect/profiler"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Phase is the scheduler's position within a processing cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseEncoding
	PhaseInferring
	PhaseDecoding
	PhasePublishing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEncoding:
		return "encoding"
	case PhaseInferring:
		return "inferring"
	case PhaseDecoding:
		return "decoding"
	case PhasePublishing:
		return "publishing"
	}
	return "unknown"
}

const (
	// DefaultMinInterval spaces cycle starts: a new cycle begins only when
	// more than this has passed since the previous cycle started.
	DefaultMinInterval = 110 * time.Millisecond
	// DefaultTickInterval is the polling cadence, the stand-in for a
	// display-synchronized callback.
	DefaultTickInterval = 16 * time.Millisecond
)

// FrameSource supplies the most recent ready frame. The scheduler calls
// Frame exactly once per started cycle and never buffers.
type FrameSource interface {
	// Frame returns the latest frame, or false when none is available yet.
	Frame() (images.Frame, bool)
}

// Pipeline is the staged detection pipeline the scheduler drives. The stages
// are split so the scheduler can track its phase through a cycle; Decode
// includes duplicate suppression and returns a publishable set.
type Pipeline interface {
	Encode(frame images.Frame) (*tensor.Dense, error)
	Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	Decode(out *tensor.Dense) (postprocess.DetectionSet, error)
}

// Update is one published detection set and its publish version.
type Update struct {
	Set     postprocess.DetectionSet
	Version uint64
}

// WatcherChannelSize buffers watcher channels deep enough that a consumer
// doing real work between reads never stalls the publish path.
const WatcherChannelSize = 100

// Config wires a scheduler. Log, Source and Pipeline are required.
type Config struct {
	// Log is required.
	Log logs.Log
	// Clock injects time for tests. Nil uses the wall clock.
	Clock clock.Clock
	// Source supplies frames.
	Source FrameSource
	// Pipeline processes them.
	Pipeline Pipeline
	// MinInterval throttles cycle starts. Zero or negative uses
	// DefaultMinInterval.
	MinInterval time.Duration
	// TickInterval is the polling cadence. Zero or negative uses
	// DefaultTickInterval.
	TickInterval time.Duration
	// Profiler records per-stage durations when set.
	Profiler *profiler.Pipeline
}

// Stats is a snapshot of the scheduler's cumulative counters. Every tick
// lands in exactly one of the three buckets.
type Stats struct {
	// CompletedCycles counts cycles that published a decoded set.
	CompletedCycles int64
	// FailedCycles counts cycles that hit a stage error and published an
	// empty set instead.
	FailedCycles int64
	// DroppedTicks counts ticks that started no cycle: busy, throttled,
	// or no frame ready.
	DroppedTicks int64
}

// Scheduler owns the pipeline loop. One goroutine runs Run; Latest, Phase,
// Stats and the watcher methods are safe from any goroutine.
type Scheduler struct {
	log          logs.Log
	clk          clock.Clock
	source       FrameSource
	pipeline     Pipeline
	minInterval  time.Duration
	tickInterval time.Duration
	prof         *profiler.Pipeline

	phase atomic.Int32
	// lastProcessed is the start time of the most recent cycle, owned by
	// the run loop.
	lastProcessed time.Time

	// Publish cell: the latest set replaces the previous one atomically
	// from the consumer's point of view.
	mu      sync.RWMutex
	latest  postprocess.DetectionSet
	version uint64

	watchersLock sync.RWMutex
	watchers     []chan Update

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	startOnce sync.Once
	started   chan struct{}
}

// New builds a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Log == nil {
		return nil, errors.New("scheduler requires a logger")
	}
	if cfg.Source == nil {
		return nil, errors.New("scheduler requires a frame source")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("scheduler requires a pipeline")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Scheduler{
		log:          cfg.Log,
		clk:          cfg.Clock,
		source:       cfg.Source,
		pipeline:     cfg.Pipeline,
		minInterval:  cfg.MinInterval,
		tickInterval: cfg.TickInterval,
		prof:         cfg.Profiler,
		started:      make(chan struct{}),
	}, nil
}

// Run drives the tick loop until ctx is done. Call it from one goroutine;
// pipeline stages run synchronously inside the loop, which is what bounds
// the pipeline to a single cycle in flight.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clk.Ticker(s.tickInterval)
	defer ticker.Stop()
	s.startOnce.Do(func() { close(s.started) })

	s.log.Infof("Scheduler running: tick %v, min interval %v", s.tickInterval, s.minInterval)
	for {
		select {
		case <-ctx.Done():
			st := s.Stats()
			s.log.Infof("Scheduler stopped: %v cycles completed, %v failed, %v ticks dropped",
				st.CompletedCycles, st.FailedCycles, st.DroppedTicks)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the cycle gates: idle, throttle, frame readiness. A tick failing
// any gate is a no-op; frames are dropped, never queued.
func (s *Scheduler) tick(ctx context.Context) {
	if Phase(s.phase.Load()) != PhaseIdle {
		s.dropped.Add(1)
		return
	}
	now := s.clk.Now()
	if now.Sub(s.lastProcessed) <= s.minInterval {
		s.dropped.Add(1)
		return
	}
	frame, ok := s.source.Frame()
	if !ok {
		// lastProcessed stays untouched: the next tick with a frame
		// ready starts immediately.
		s.dropped.Add(1)
		return
	}
	s.lastProcessed = now
	s.runCycle(ctx, frame)
}

// runCycle processes one frame through the pipeline and publishes the
// outcome. A stage error publishes an empty set for the cycle; the frame
// identity is stamped either way. The counters move last, so an observer
// that sees them has seen a finished cycle.
func (s *Scheduler) runCycle(ctx context.Context, frame images.Frame) {
	stopCycle := s.profStart(profiler.StageCycle)

	set, err := s.process(ctx, frame)
	if err != nil {
		s.logCycleError(frame.Seq, err)
		set = postprocess.DetectionSet{}
	}
	set.FrameSeq = frame.Seq
	set.Timestamp = frame.Timestamp

	s.phase.Store(int32(PhasePublishing))
	stopPublish := s.profStart(profiler.StagePublish)
	s.publish(set)
	stopPublish()

	stopCycle()
	s.phase.Store(int32(PhaseIdle))

	if err != nil {
		s.failed.Add(1)
	} else {
		s.completed.Add(1)
	}
}

// process walks the frame through encode, infer, decode.
func (s *Scheduler) process(ctx context.Context, frame images.Frame) (postprocess.DetectionSet, error) {
	s.phase.Store(int32(PhaseEncoding))
	stop := s.profStart(profiler.StageEncode)
	input, err := s.pipeline.Encode(frame)
	stop()
	if err != nil {
		return postprocess.DetectionSet{}, err
	}

	s.phase.Store(int32(PhaseInferring))
	stop = s.profStart(profiler.StageInfer)
	raw, err := s.pipeline.Infer(ctx, input)
	stop()
	if err != nil {
		return postprocess.DetectionSet{}, err
	}

	s.phase.Store(int32(PhaseDecoding))
	stop = s.profStart(profiler.StageDecode)
	set, err := s.pipeline.Decode(raw)
	stop()
	if err != nil {
		return postprocess.DetectionSet{}, err
	}
	return set, nil
}

// logCycleError classifies a per-cycle failure. Decoding errors mean the
// model and decoder disagree about the output layout, which is a
// configuration bug rather than transient noise, so they log louder.
func (s *Scheduler) logCycleError(frameSeq int64, err error) {
	var decErr *postprocess.DecodingError
	if errors.As(err, &decErr) {
		s.log.Errorf("Cycle for frame %v failed: %v. The model output layout does not match the decoder configuration.", frameSeq, err)
		return
	}
	s.log.Warnf("Cycle for frame %v failed: %v", frameSeq, err)
}

// publish installs the set as latest and notifies watchers. A watcher whose
// channel is nearly full loses this update rather than stalling the loop.
func (s *Scheduler) publish(set postprocess.DetectionSet) {
	s.mu.Lock()
	s.version++
	s.latest = set
	update := Update{Set: set, Version: s.version}
	s.mu.Unlock()

	s.watchersLock.RLock()
	for _, ch := range s.watchers {
		if len(ch) >= cap(ch)*9/10 {
			s.log.Warnf("Detection watcher is falling behind, dropping update %v", update.Version)
		} else {
			ch <- update
		}
	}
	s.watchersLock.RUnlock()
}

// Latest returns the most recently published set and its version. Version 0
// means nothing has been published yet.
func (s *Scheduler) Latest() (postprocess.DetectionSet, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.version
}

// AddWatcher registers for published detection sets and returns the channel
// updates arrive on.
func (s *Scheduler) AddWatcher() chan Update {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	ch := make(chan Update, WatcherChannelSize)
	s.watchers = append(s.watchers, ch)
	return ch
}

// RemoveWatcher unregisters a channel returned by AddWatcher.
func (s *Scheduler) RemoveWatcher(ch chan Update) {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	for i, w := range s.watchers {
		if w == ch {
			s.watchers[i] = s.watchers[len(s.watchers)-1]
			s.watchers = s.watchers[:len(s.watchers)-1]
			return
		}
	}
	s.log.Warnf("Scheduler.RemoveWatcher failed to find channel")
}

// Phase returns the scheduler's current position in the cycle.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Stats returns the cumulative tick counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		CompletedCycles: s.completed.Load(),
		FailedCycles:    s.failed.Load(),
		DroppedTicks:    s.dropped.Load(),
	}
}

func (s *Scheduler) profStart(stage profiler.Stage) func() {
	if s.prof == nil {
		return func() {}
	}
	return s.prof.StartStage(stage)
}
