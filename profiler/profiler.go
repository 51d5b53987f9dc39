// Package profiler - Stage timing for the detection pipeline.
//
// The hot path (StartStage and its stop function) costs one clock read and a
// few atomics, cheap enough to leave enabled in production. Full-cycle
// durations additionally land in a small ring so reports can show the recent
// distribution, not just lifetime averages.
package profiler

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/ringbuffer"
	"github.com/chewxy/math32"
)

// Stage names one timed section of a processing cycle.
type Stage string

const (
	StageEncode  Stage = "encode"
	StageInfer   Stage = "infer"
	StageDecode  Stage = "decode"
	StagePublish Stage = "publish"
	// StageCycle covers a whole cycle, frame pickup to publish.
	StageCycle Stage = "cycle"
)

// stages in report order.
var stages = []Stage{StageEncode, StageInfer, StageDecode, StagePublish, StageCycle}

// RecentCycles is how many full-cycle records the ring keeps.
const RecentCycles = 128

// CycleRecord is one completed cycle.
type CycleRecord struct {
	At       time.Time
	Duration time.Duration
}

// stageStats is the running tally for one stage.
type stageStats struct {
	count    atomic.Int64
	totalNs  atomic.Int64
	movingNs atomic.Uint64
}

// Pipeline collects per-stage timings for the detection loop.
type Pipeline struct {
	byStage map[Stage]*stageStats // fixed at construction

	mu     sync.Mutex
	recent ringbuffer.RingP[CycleRecord]
}

// NewPipeline creates an empty profiler.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		byStage: make(map[Stage]*stageStats, len(stages)),
		recent:  ringbuffer.NewRingP[CycleRecord](nextPowerOf2(RecentCycles)),
	}
	for _, s := range stages {
		p.byStage[s] = &stageStats{}
	}
	return p
}

// StartStage begins timing a stage and returns the function that stops the
// clock and records the sample.
func (p *Pipeline) StartStage(stage Stage) func() {
	start := time.Now()
	return func() {
		p.record(stage, time.Since(start))
	}
}

func (p *Pipeline) record(stage Stage, d time.Duration) {
	st, ok := p.byStage[stage]
	if !ok {
		return
	}
	ns := uint64(d.Nanoseconds())
	st.count.Add(1)
	st.totalNs.Add(d.Nanoseconds())
	// Moving average over roughly the last 64 samples. We don't bother
	// with CompareAndSwap here; these are sampled stats and missing the
	// odd sample is fine.
	if st.movingNs.Load() == 0 {
		st.movingNs.Store(ns)
	} else {
		st.movingNs.Store((st.movingNs.Load()*63 + ns) >> 6)
	}

	if stage == StageCycle {
		p.mu.Lock()
		p.recent.Add(CycleRecord{At: time.Now(), Duration: d})
		p.mu.Unlock()
	}
}

// StageSnapshot is the state of one stage at snapshot time.
type StageSnapshot struct {
	Stage Stage
	Count int64
	// Average is the lifetime mean.
	Average time.Duration
	// Moving follows roughly the last 64 samples.
	Moving time.Duration
}

// CycleStats summarizes the recent-cycle ring.
type CycleStats struct {
	Count  int
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration
}

// Snapshot is a point-in-time view of all stage timings.
type Snapshot struct {
	Stages []StageSnapshot
	Recent CycleStats
}

// Snapshot captures the current statistics.
func (p *Pipeline) Snapshot() Snapshot {
	snap := Snapshot{Stages: make([]StageSnapshot, 0, len(stages))}
	for _, s := range stages {
		st := p.byStage[s]
		count := st.count.Load()
		ss := StageSnapshot{
			Stage:  s,
			Count:  count,
			Moving: time.Duration(st.movingNs.Load()),
		}
		if count > 0 {
			ss.Average = time.Duration(st.totalNs.Load() / count)
		}
		snap.Stages = append(snap.Stages, ss)
	}
	snap.Recent = p.recentStats()
	return snap
}

func (p *Pipeline) recentStats() CycleStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.recent.Len()
	if n == 0 {
		return CycleStats{}
	}

	stats := CycleStats{Count: n}
	ms := make([]float32, n)
	var sum float32
	for i := 0; i < n; i++ {
		rec := p.recent.Peek(i)
		ms[i] = float32(rec.Duration.Nanoseconds()) / 1e6
		sum += ms[i]
		if i == 0 || rec.Duration < stats.Min {
			stats.Min = rec.Duration
		}
		if rec.Duration > stats.Max {
			stats.Max = rec.Duration
		}
	}
	mean := sum / float32(n)
	var varSum float32
	for _, v := range ms {
		dev := v - mean
		varSum += dev * dev
	}
	stats.Mean = msToDuration(mean)
	stats.StdDev = msToDuration(math32.Sqrt(varSum / float32(n)))
	return stats
}

func (s Snapshot) String() string {
	b := &strings.Builder{}
	for _, st := range s.Stages {
		if st.Count == 0 {
			continue
		}
		fmt.Fprintf(b, "%-8s n=%-7d avg=%-12v recent=%v\n", st.Stage, st.Count, st.Average, st.Moving)
	}
	if s.Recent.Count > 0 {
		fmt.Fprintf(b, "last %d cycles: min=%v max=%v mean=%v stddev=%v\n",
			s.Recent.Count, s.Recent.Min, s.Recent.Max, s.Recent.Mean, s.Recent.StdDev)
	}
	return b.String()
}

func msToDuration(ms float32) time.Duration {
	return time.Duration(float64(ms) * float64(time.Millisecond))
}

func nextPowerOf2(n int) int {
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}
