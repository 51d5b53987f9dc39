// Package capture provides frame sources for the detection pipeline: a
// webcam or video file reader, a stills directory player, and a synthetic
// generator for tests and benchmarks.
package capture

import (
	"github.com/nvr-ai/go-rtdetect/images"
)

// Source supplies frames to the scheduler and owns whatever device or
// resource produces them. Frame returns the newest frame not yet handed
// out, or false when nothing new is available; frames are never queued.
type Source interface {
	Frame() (images.Frame, bool)
	Close() error
}
