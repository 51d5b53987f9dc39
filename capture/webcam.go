// Package capture - live camera and video file source.
package capture

import (
	"crypto/md5"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Webcam reads frames from a capture device or video file on a background
// goroutine and keeps only the most recent one. Frame hands each frame out
// at most once, so a slow consumer always sees a fresh frame and never a
// backlog.
type Webcam struct {
	log      logs.Log
	device   *gocv.VideoCapture
	mustStop atomic.Bool
	done     chan struct{}

	mu     sync.Mutex
	latest images.Frame
	// handed is the Seq of the last frame given out by Frame.
	handed int64
}

var _ Source = (*Webcam)(nil)

// OpenWebcam opens a camera device ("0") or a video file path and starts
// the capture loop. Numeric strings select a device, anything else is
// treated as a file.
func OpenWebcam(log logs.Log, device string) (*Webcam, error) {
	dev, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "opening capture device %q", device)
	}
	w := &Webcam{
		log:    log,
		device: dev,
		done:   make(chan struct{}),
	}
	go w.readLoop()
	log.Infof("Capture running on device %q", device)
	return w, nil
}

// readLoop pulls frames from the device as fast as it produces them,
// converting each new one into the latest slot. Paused feeds and stuck
// cameras repeat identical frames; the checksum skips those so Seq only
// advances on fresh pixels.
func (w *Webcam) readLoop() {
	defer close(w.done)

	mat := gocv.NewMat()
	defer mat.Close()

	var lastSum [md5.Size]byte
	seq := int64(0)
	for !w.mustStop.Load() {
		if ok := w.device.Read(&mat); !ok {
			w.log.Warnf("Frame source closed, capture loop exiting")
			return
		}
		if mat.Empty() {
			continue
		}
		if sum, ok := matChecksum(mat); ok {
			if sum == lastSum {
				continue
			}
			lastSum = sum
		}

		img, err := mat.ToImage()
		if err != nil {
			w.log.Warnf("Dropping unconvertible frame: %v", err)
			continue
		}
		seq++
		w.mu.Lock()
		w.latest = images.Frame{Seq: seq, Image: img, Timestamp: time.Now()}
		w.mu.Unlock()
	}
}

// Frame returns the most recent captured frame, once. Repeat calls before a
// new frame arrives report false.
func (w *Webcam) Frame() (images.Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest.Empty() || w.latest.Seq == w.handed {
		return images.Frame{}, false
	}
	w.handed = w.latest.Seq
	return w.latest, true
}

// Close stops the capture loop and releases the device.
func (w *Webcam) Close() error {
	w.mustStop.Store(true)
	<-w.done
	return w.device.Close()
}

// matChecksum hashes the mat's pixel bytes for duplicate-frame detection.
// Non-contiguous mats report false and skip deduplication.
func matChecksum(mat gocv.Mat) ([md5.Size]byte, bool) {
	data, err := mat.DataPtrUint8()
	if err != nil {
		return [md5.Size]byte{}, false
	}
	return md5.Sum(data), true
}
