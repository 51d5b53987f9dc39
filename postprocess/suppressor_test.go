package postprocess

import (
	"testing"

	"github.com/nvr-ai/go-rtdetect/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(label string, conf float32, box images.Rect) Detection {
	return Detection{ClassLabel: label, Confidence: conf, Box: box}
}

// TestSuppressOverlappingPair: two boxes covering the same object, the higher
// confidence one wins.
func TestSuppressOverlappingPair(t *testing.T) {
	sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5})

	a := det("a", 0.9, images.NewRect(0, 0, 100, 100))
	b := det("b", 0.7, images.NewRect(10, 0, 100, 100)) // IOU with a ~= 0.82

	require.Greater(t, a.Box.IOU(b.Box), float32(0.5), "test boxes must overlap beyond the threshold")

	out := sup.Suppress([]Detection{b, a})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ClassLabel, "only the higher-confidence box should survive")
}

// TestSuppressDisjoint: non-overlapping boxes all survive, ordered by
// confidence descending.
func TestSuppressDisjoint(t *testing.T) {
	sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5})

	a := det("a", 0.6, images.NewRect(0, 0, 50, 50))
	b := det("b", 0.8, images.NewRect(200, 200, 50, 50))

	out := sup.Suppress([]Detection{a, b})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ClassLabel, "higher confidence first")
	assert.Equal(t, "a", out[1].ClassLabel)
}

// TestSuppressIdempotent: running suppression over its own output changes
// nothing.
func TestSuppressIdempotent(t *testing.T) {
	for _, mode := range []SuppressionMode{ModeFirstMatch, ModeGreedy} {
		t.Run(string(mode), func(t *testing.T) {
			sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5, Mode: mode})

			in := []Detection{
				det("a", 0.9, images.NewRect(0, 0, 100, 100)),
				det("b", 0.8, images.NewRect(20, 0, 100, 100)),
				det("c", 0.7, images.NewRect(40, 0, 100, 100)),
				det("d", 0.6, images.NewRect(300, 300, 40, 40)),
				det("e", 0.5, images.NewRect(310, 300, 40, 40)),
			}

			once := sup.Suppress(in)
			twice := sup.Suppress(once)
			assert.Equal(t, once, twice)
		})
	}
}

// TestSuppressCardinality: output never grows, empty stays empty, a single
// box is untouched.
func TestSuppressCardinality(t *testing.T) {
	sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5})

	assert.Empty(t, sup.Suppress(nil))
	assert.Empty(t, sup.Suppress([]Detection{}))

	single := []Detection{det("a", 0.9, images.NewRect(0, 0, 10, 10))}
	out := sup.Suppress(single)
	require.Len(t, out, 1)
	assert.Equal(t, single[0], out[0])

	crowd := []Detection{
		det("a", 0.9, images.NewRect(0, 0, 100, 100)),
		det("b", 0.8, images.NewRect(5, 5, 100, 100)),
		det("c", 0.7, images.NewRect(10, 10, 100, 100)),
		det("d", 0.6, images.NewRect(500, 500, 100, 100)),
	}
	assert.LessOrEqual(t, len(sup.Suppress(crowd)), len(crowd))
}

// TestSuppressTieOrder: equal confidences keep their candidate order.
func TestSuppressTieOrder(t *testing.T) {
	sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5})

	a := det("first", 0.8, images.NewRect(0, 0, 50, 50))
	b := det("second", 0.8, images.NewRect(200, 0, 50, 50))

	out := sup.Suppress([]Detection{a, b})
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].ClassLabel)
	assert.Equal(t, "second", out[1].ClassLabel)
}

// TestSuppressChainDivergence documents how the two modes differ on an
// overlap chain a-b-c where consecutive boxes overlap but a and c do not:
// first-match drops c because the (already suppressed) b overlaps it, greedy
// keeps c because only survivors suppress.
func TestSuppressChainDivergence(t *testing.T) {
	a := det("a", 0.9, images.NewRect(0, 0, 100, 100))
	b := det("b", 0.8, images.NewRect(20, 0, 100, 100))
	c := det("c", 0.7, images.NewRect(40, 0, 100, 100))

	require.Greater(t, a.Box.IOU(b.Box), float32(0.5))
	require.Greater(t, b.Box.IOU(c.Box), float32(0.5))
	require.LessOrEqual(t, a.Box.IOU(c.Box), float32(0.5))

	in := []Detection{a, b, c}

	firstMatch := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5, Mode: ModeFirstMatch})
	out := firstMatch.Suppress(in)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ClassLabel)

	greedy := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5, Mode: ModeGreedy})
	out = greedy.Suppress(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ClassLabel)
	assert.Equal(t, "c", out[1].ClassLabel)
}

// TestSuppressInputUntouched: the candidate slice is copied, not reordered in
// place.
func TestSuppressInputUntouched(t *testing.T) {
	sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5})

	in := []Detection{
		det("low", 0.3, images.NewRect(0, 0, 10, 10)),
		det("high", 0.9, images.NewRect(200, 0, 10, 10)),
	}
	_ = sup.Suppress(in)

	assert.Equal(t, "low", in[0].ClassLabel)
	assert.Equal(t, "high", in[1].ClassLabel)
}

func TestNewSuppressorDefaults(t *testing.T) {
	sup := NewSuppressor(SuppressorConfig{})
	assert.InDelta(t, DefaultIOUThreshold, sup.cfg.IOUThreshold, 1e-9)
	assert.Equal(t, ModeFirstMatch, sup.cfg.Mode)
}

func BenchmarkSuppress(b *testing.B) {
	// Clusters of mutually overlapping boxes plus scattered singletons.
	candidates := []Detection{}
	for cluster := 0; cluster < 10; cluster++ {
		base := float32(cluster * 150)
		for i := 0; i < 10; i++ {
			candidates = append(candidates, det("obj", 0.5+float32(i)*0.04,
				images.NewRect(base+float32(i)*4, base, 80, 80)))
		}
	}
	sup := NewSuppressor(SuppressorConfig{IOUThreshold: 0.5})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sup.Suppress(candidates)
	}
}
