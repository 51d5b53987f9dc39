// Package util - filesystem helpers for loading image sequences.
package util

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/pkg/errors"
)

// FramePrefix is the filename prefix the loader strips when parsing frame
// numbers, as in "frame-17.png".
const FramePrefix = "frame-"

// ImageFile is one image on disk, addressed by its frame number.
type ImageFile struct {
	// Path is the location the file was read from.
	Path string
	// Data is the raw encoded bytes.
	Data []byte
	// Frame is the frame number parsed from the file name.
	Frame int
}

// Decode parses the raw bytes into an image. JPEG and PNG are supported.
func (f ImageFile) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", f.Path)
	}
	return img, nil
}

// LoadDirectoryImageFiles reads every frame-numbered image file in dir and
// returns them sorted by frame number. Files whose names carry no parseable
// frame number are skipped, so a stills directory can hold notes and other
// clutter without breaking the sequence.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading stills directory")
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		frame, ok := frameNumber(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", entry.Name())
		}
		files = append(files, ImageFile{Path: path, Data: data, Frame: frame})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})
	return files, nil
}

// frameNumber parses the frame number out of names like "frame-3.png" or
// "12.jpg". Unsupported extensions and unnumbered names report false.
func frameNumber(name string) (int, bool) {
	if _, ok := images.FormatFromPath(name); !ok {
		return 0, false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.TrimPrefix(stem, FramePrefix)
	frame, err := strconv.Atoi(stem)
	if err != nil {
		return 0, false
	}
	return frame, true
}
