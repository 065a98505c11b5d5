package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10, "..."))
	assert.Equal(t, "hello...", Truncate("hello world", 5, "..."))
	assert.Equal(t, "x", Truncate("x", 0, "..."))
	assert.Equal(t, "açã [cut]", Truncate("açãoXYZ", 3, " [cut]"))
	assert.Equal(t, "çã", Truncate("çãé", 2, ""))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc...", Preview("abcdef", 3))
	assert.Equal(t, "ab", Preview("ab", 3))
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	NormalizeL2(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.123457, Round(0.1234567, 6))
	assert.Equal(t, 2.0, Round(1.999, 2))
	assert.True(t, math.Abs(Round(-1.005, 1)+1.0) < 1e-9)
}
