// Package postprocess - Detection data model shared by the decoder and
// suppressor.
package postprocess

import (
	"fmt"
	"time"

	"github.com/nvr-ai/go-rtdetect/images"
)

// Detection is one detected object, boxed in model-input pixel units.
type Detection struct {
	// ClassLabel is the human-readable class name.
	ClassLabel string `json:"class_label"`
	// ClassIndex is the argmax over the row's class scores.
	ClassIndex int `json:"class_index"`
	// Confidence is the model's objectness score for the box.
	Confidence float32 `json:"confidence"`
	// Box is the bounding box, top-left corner plus size.
	Box images.Rect `json:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s(%d) %.2f %v", d.ClassLabel, d.ClassIndex, d.Confidence, d.Box)
}

// DetectionSet is the complete detection result for one processed frame.
// The scheduler publishes exactly one set per cycle, and consumers replace
// their previous copy wholesale rather than merging.
type DetectionSet struct {
	// Detections are the surviving boxes, ordered by confidence descending.
	Detections []Detection `json:"detections"`
	// FrameSeq is the sequence number of the frame the set was decoded from.
	FrameSeq int64 `json:"frame_seq"`
	// Timestamp is the capture time of that frame.
	Timestamp time.Time `json:"timestamp"`
}

// Len returns the number of detections in the set.
func (ds DetectionSet) Len() int {
	return len(ds.Detections)
}
