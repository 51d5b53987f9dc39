package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-rtdetect/capture"
	"github.com/nvr-ai/go-rtdetect/inference"
	"github.com/nvr-ai/go-rtdetect/postprocess"
	"github.com/nvr-ai/go-rtdetect/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.EqualValues(t, 0.5, cfg.GetConfidenceThreshold())
	assert.EqualValues(t, 0.5, cfg.GetIOUThreshold())
	assert.Equal(t, postprocess.ModeFirstMatch, cfg.GetNMSMode())
	assert.Equal(t, 640, cfg.GetInputSize())
	assert.Equal(t, preprocess.ResizeStretch, cfg.GetResizeMode())
	assert.Equal(t, 110*time.Millisecond, cfg.GetMinInterval())
	assert.Equal(t, 16*time.Millisecond, cfg.GetTickInterval())
	assert.Equal(t, inference.EngineONNX, cfg.GetEngine())
	assert.Equal(t, DefaultModelPath, cfg.GetModelPath())
	assert.Empty(t, cfg.GetLabelsPath())
	assert.Empty(t, cfg.GetLibraryPath())
	assert.Equal(t, "images", cfg.GetInputName())
	assert.Equal(t, "output0", cfg.GetOutputName())
	assert.Equal(t, inference.DefaultOutputRows, cfg.GetOutputRows())
	assert.Equal(t, inference.DefaultOutputCols, cfg.GetOutputCols())
	assert.Zero(t, cfg.GetIntraOpThreads())
	assert.Equal(t, capture.SourceWebcam, cfg.GetSource())
	assert.Equal(t, "0", cfg.GetDevice())
	assert.Equal(t, 640, cfg.GetSyntheticWidth())
	assert.Equal(t, 480, cfg.GetSyntheticHeight())

	assert.NoError(t, cfg.Validate())
}

func TestLoadPartialOverrides(t *testing.T) {
	path := writeConfig(t, `{
  "confidence_threshold": 0.35,
  "nms_mode": "greedy",
  "input_size": 416,
  "resize_mode": "letterbox",
  "min_interval": "250ms",
  "engine": "stub",
  "source": "synthetic",
  "synthetic_width": 320,
  "synthetic_height": 240
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.EqualValues(t, 0.35, cfg.GetConfidenceThreshold())
	assert.Equal(t, postprocess.ModeGreedy, cfg.GetNMSMode())
	assert.Equal(t, 416, cfg.GetInputSize())
	assert.Equal(t, preprocess.ResizeLetterbox, cfg.GetResizeMode())
	assert.Equal(t, 250*time.Millisecond, cfg.GetMinInterval())
	assert.Equal(t, inference.EngineStub, cfg.GetEngine())
	assert.Equal(t, capture.SourceSynthetic, cfg.GetSource())
	assert.Equal(t, 320, cfg.GetSyntheticWidth())
	assert.Equal(t, 240, cfg.GetSyntheticHeight())

	// Fields the file never named keep their defaults.
	assert.EqualValues(t, 0.5, cfg.GetIOUThreshold())
	assert.Equal(t, 16*time.Millisecond, cfg.GetTickInterval())
	assert.Equal(t, DefaultModelPath, cfg.GetModelPath())
}

func TestLoadRejectsBadFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "pipeline.yaml"))
	assert.Error(t, err, "non-json extension")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "missing file")

	_, err = Load(writeConfig(t, `{"confidence_threshold": `))
	assert.Error(t, err, "truncated JSON")
}

func TestValidate(t *testing.T) {
	cases := map[string]*Config{
		"confidence above 1":      {ConfidenceThreshold: ptrFloat64(1.5)},
		"confidence below 0":      {ConfidenceThreshold: ptrFloat64(-0.1)},
		"iou above 1":             {IOUThreshold: ptrFloat64(2)},
		"unknown nms mode":        {NMSMode: ptrString("soft")},
		"zero input size":         {InputSize: ptrInt(0)},
		"unknown resize mode":     {ResizeMode: ptrString("crop")},
		"garbled min interval":    {MinInterval: ptrString("soon")},
		"negative tick interval":  {TickInterval: ptrString("-16ms")},
		"unknown engine":          {Engine: ptrString("tensorrt")},
		"zero output rows":        {OutputRows: ptrInt(0)},
		"output cols below 5":     {OutputCols: ptrInt(4)},
		"negative intra op":       {IntraOpThreads: ptrInt(-1)},
		"unknown source":          {Source: ptrString("rtsp")},
		"stills without dir":      {Source: ptrString("stills")},
		"zero synthetic width":    {SyntheticWidth: ptrInt(0)},
		"negative synthetic size": {SyntheticHeight: ptrInt(-1)},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}

	ok := &Config{
		ConfidenceThreshold: ptrFloat64(0.25),
		IOUThreshold:        ptrFloat64(0.45),
		NMSMode:             ptrString("first-match"),
		Source:              ptrString("stills"),
		StillsDir:           ptrString("testdata/stills"),
	}
	assert.NoError(t, ok.Validate())
}

func TestLoadValidates(t *testing.T) {
	_, err := Load(writeConfig(t, `{"engine": "tensorrt"}`))
	assert.Error(t, err)
}
