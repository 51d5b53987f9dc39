// Package postprocess - Non-maximum suppression over decoded detections.
package postprocess

import "sort"

// DefaultIOUThreshold is the overlap threshold used when
// SuppressorConfig.IOUThreshold is zero.
const DefaultIOUThreshold = 0.5

// SuppressionMode selects the suppression rule.
type SuppressionMode string

const (
	// ModeFirstMatch keeps a box iff, scanning the confidence-sorted list
	// from the top, the first box overlapping it beyond the threshold is
	// the box itself. A box that was itself suppressed still suppresses
	// boxes below it, which makes the rule more aggressive than greedy NMS
	// on overlap chains.
	ModeFirstMatch SuppressionMode = "first-match"
	// ModeGreedy is textbook NMS: a box is tested against surviving boxes
	// only.
	ModeGreedy SuppressionMode = "greedy"
)

// SuppressorConfig controls non-maximum suppression.
type SuppressorConfig struct {
	// IOUThreshold u: two boxes overlap when their IOU is strictly greater
	// than u. Defaults to 0.5.
	IOUThreshold float32
	// Mode defaults to ModeFirstMatch.
	Mode SuppressionMode
}

// Suppressor deduplicates detections that cover the same object.
type Suppressor struct {
	cfg SuppressorConfig
}

// NewSuppressor creates a suppressor, filling zero config fields with
// defaults.
func NewSuppressor(cfg SuppressorConfig) *Suppressor {
	if cfg.IOUThreshold == 0 {
		cfg.IOUThreshold = DefaultIOUThreshold
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFirstMatch
	}
	return &Suppressor{cfg: cfg}
}

// Suppress returns the candidates surviving non-maximum suppression, ordered
// by confidence descending (ties keep candidate order). The input slice is
// left untouched.
func (s *Suppressor) Suppress(candidates []Detection) []Detection {
	if len(candidates) <= 1 {
		return append([]Detection(nil), candidates...)
	}

	sorted := append([]Detection(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	if s.cfg.Mode == ModeGreedy {
		return s.greedy(sorted)
	}
	return s.firstMatch(sorted)
}

// firstMatch keeps sorted[i] iff the first j with
// IOU(sorted[j], sorted[i]) > u is i itself. IOU(a, a) is 1 for boxes with
// positive area, so the scan always stops at or before i.
func (s *Suppressor) firstMatch(sorted []Detection) []Detection {
	kept := []Detection{}
	for i := range sorted {
		for j := range sorted {
			if sorted[j].Box.IOU(sorted[i].Box) > s.cfg.IOUThreshold {
				if j == i {
					kept = append(kept, sorted[i])
				}
				break
			}
		}
	}
	return kept
}

// greedy keeps sorted[i] unless an already-kept box overlaps it beyond the
// threshold.
func (s *Suppressor) greedy(sorted []Detection) []Detection {
	kept := []Detection{}
	for _, candidate := range sorted {
		suppressed := false
		for _, survivor := range kept {
			if survivor.Box.IOU(candidate.Box) > s.cfg.IOUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}
