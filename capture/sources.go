// Package capture - Source selection by name.
package capture

import "github.com/pkg/errors"

// SourceType is the type of the frame source
type SourceType string

const (
	// SourceWebcam is the live camera or video file source
	SourceWebcam SourceType = "webcam"
	// SourceStills replays frame-numbered images from a directory
	SourceStills SourceType = "stills"
	// SourceSynthetic generates deterministic frames in process
	SourceSynthetic SourceType = "synthetic"
)

// Sources is a list of all supported frame sources
var Sources = []SourceType{SourceWebcam, SourceStills, SourceSynthetic}

// ParseSourceType validates a source name from config or CLI input.
func ParseSourceType(name string) (SourceType, error) {
	for _, s := range Sources {
		if string(s) == name {
			return s, nil
		}
	}
	return "", errors.Errorf("unknown source %q, supported sources are %v", name, Sources)
}
