package facematch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDistance(t *testing.T) {
	d, err := Distance([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)

	_, err = Distance([]float64{1, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestVerifyIdenticalVectorsAlwaysMatch(t *testing.T) {
	for _, threshold := range []float64{0, 0.1, 0.6, 10} {
		res, err := Verify(repeat(0.42, 128), repeat(0.42, 128), threshold)
		require.NoError(t, err)
		assert.True(t, res.Match, "threshold %g", threshold)
		assert.Zero(t, res.Distance)
	}
}

func TestVerifySymmetry(t *testing.T) {
	a := []float64{0.1, -0.5, 0.9, 0.3}
	b := []float64{0.2, 0.5, -0.1, 0.0}

	ab, err := Verify(a, b, 0.6)
	require.NoError(t, err)
	ba, err := Verify(b, a, 0.6)
	require.NoError(t, err)

	assert.Equal(t, ab.Match, ba.Match)
	assert.InDelta(t, ab.Distance, ba.Distance, 1e-12)
}

func TestVerifyZeroTemplateScenario(t *testing.T) {
	stored := repeat(0, 128)

	res, err := Verify(stored, repeat(0, 128), 0.6)
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Zero(t, res.Distance)

	res, err = Verify(stored, repeat(10, 128), 0.6)
	require.NoError(t, err)
	assert.False(t, res.Match)
	assert.InDelta(t, 10*math.Sqrt(128), res.Distance, 1e-9)
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name    string
		stored  []float64
		probe   []float64
		wantErr error
	}{
		{"empty stored", nil, []float64{1}, ErrNoEnrollment},
		{"empty probe", []float64{1}, nil, ErrNoProbe},
		{"dimension mismatch", []float64{1, 2}, []float64{1, 2, 3}, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.stored, tt.probe, 0.6)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyThresholdBoundary(t *testing.T) {
	// distance is exactly 0.6: match is inclusive
	res, err := Verify([]float64{0, 0}, []float64{0.6, 0}, 0.6)
	require.NoError(t, err)
	assert.True(t, res.Match)

	res, err = Verify([]float64{0, 0}, []float64{0.601, 0}, 0.6)
	require.NoError(t, err)
	assert.False(t, res.Match)
}

func TestIdentifyBest(t *testing.T) {
	gallery := map[string][][]float64{
		"alice": {{0, 0, 0}},
		"bob":   {{1, 1, 1}, {5, 5, 5}},
	}

	best, err := IdentifyBest([]float64{0.9, 0.9, 0.9}, gallery, 0.6)
	require.NoError(t, err)
	assert.Equal(t, "bob", best.Label)
	assert.InDelta(t, math.Sqrt(3*0.01), best.Distance, 1e-9)
}

func TestIdentifyBestNoMatch(t *testing.T) {
	gallery := map[string][][]float64{"alice": {{0, 0, 0}}}
	_, err := IdentifyBest([]float64{5, 5, 5}, gallery, 0.6)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestIdentifyBestTieBreakIsDeterministic(t *testing.T) {
	// zed and amy are equidistant from the probe; the lexicographically
	// first label must win every time.
	gallery := map[string][][]float64{
		"zed": {{1, 0}},
		"amy": {{-1, 0}},
	}
	for i := 0; i < 50; i++ {
		best, err := IdentifyBest([]float64{0, 0}, gallery, 2)
		require.NoError(t, err)
		assert.Equal(t, "amy", best.Label)
	}
}

func TestIdentifyBestErrors(t *testing.T) {
	_, err := IdentifyBest(nil, map[string][][]float64{"a": {{1}}}, 0.6)
	assert.ErrorIs(t, err, ErrNoProbe)

	_, err = IdentifyBest([]float64{1}, map[string][][]float64{}, 0.6)
	assert.ErrorIs(t, err, ErrNoEnrollment)

	_, err = IdentifyBest([]float64{1}, map[string][][]float64{"a": {{1, 2}}}, 0.6)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
