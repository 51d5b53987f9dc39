// Package capture - stills directory source.
package capture

import (
	"image"
	"sync"
	"time"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/nvr-ai/go-rtdetect/util"
	"github.com/pkg/errors"
)

// Stills replays frame-numbered image files from a directory in order,
// looping at the end. It stands in for a camera in demos and tests.
type Stills struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	seq    int64
}

var _ Source = (*Stills)(nil)

// OpenStills loads and decodes every frame-numbered image under dir.
func OpenStills(dir string) (*Stills, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frame-numbered images in %s", dir)
	}
	frames := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := f.Decode()
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return &Stills{frames: frames}, nil
}

// Frame hands out the next still in sequence. Seq keeps climbing across
// loops so consumers can tell replays apart.
func (s *Stills) Frame() (images.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	s.seq++
	return images.Frame{Seq: s.seq, Image: img, Timestamp: time.Now()}, true
}

// Close is a no-op; the files were fully read at open time.
func (s *Stills) Close() error {
	return nil
}
