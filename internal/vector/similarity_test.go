package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CosineDistance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d, 1e-9)
		})
	}
}

func TestCosineDistance_Errors(t *testing.T) {
	_, err := CosineDistance([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
	_, err = CosineDistance(nil, nil)
	assert.Error(t, err)
	_, err = CosineDistance([]float32{0, 0}, []float32{1, 0})
	assert.Error(t, err)
}

func TestSimilarityMapping(t *testing.T) {
	assert.InDelta(t, 1.0, SimilarityFromDistance(0), 1e-12)
	assert.InDelta(t, 0.5, SimilarityFromDistance(1), 1e-12)
	assert.InDelta(t, 0.0, SimilarityFromDistance(MaxCosineDistance), 1e-12)

	for _, s := range []float64{0, 0.3, 0.75, 1} {
		assert.InDelta(t, s, SimilarityFromDistance(MaxDistanceForSimilarity(s)), 1e-12)
	}
}

func TestSQLCosineDistance(t *testing.T) {
	f := newDistanceFunc()
	d, err := f.cosineDistance("[1,0]", "[0,1]")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	// Unusable stored rows yield NULL instead of failing the scan.
	d, err = f.cosineDistance("garbage", "[0,1]")
	require.NoError(t, err)
	assert.Nil(t, d)
	d, err = f.cosineDistance("[1,0,0]", "[0,1]")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = f.cosineDistance("[1,0]", "bad")
	assert.Error(t, err)
}

func TestSQLCosineDistance_ReusesParsedQuery(t *testing.T) {
	f := newDistanceFunc()
	_, err := f.cosineDistance("[1,0]", "[0,1]")
	require.NoError(t, err)
	parsed := f.query
	require.Equal(t, []float32{0, 1}, parsed)

	d, err := f.cosineDistance("[0,1]", "[0,1]")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-9)
	assert.Same(t, &parsed[0], &f.query[0])

	// A new query literal replaces the cached one.
	d, err = f.cosineDistance("[1,0]", "[1,0]")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-9)
	assert.Equal(t, "[1,0]", f.literal)

	// A malformed query does not evict the previous one.
	_, err = f.cosineDistance("[1,0]", "bad")
	require.Error(t, err)
	assert.Equal(t, "[1,0]", f.literal)
}
