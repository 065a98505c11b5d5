package vector

import (
	"fmt"
	"math"
)

// MaxCosineDistance is the upper bound of cosine distance (opposite vectors).
const MaxCosineDistance = 2.0

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Vectors must have equal, non-zero length
// and non-zero magnitude.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vector")
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	cos := InnerProduct(a, b) / (na * nb)
	// Clamp rounding drift so distances stay inside [0, 2].
	cos = math.Max(-1, math.Min(1, cos))
	return 1 - cos, nil
}

// SimilarityFromDistance maps a cosine distance in [0, 2] to a similarity in [0, 1].
func SimilarityFromDistance(distance float64) float64 {
	return 1 - distance/2
}

// MaxDistanceForSimilarity is the inverse of SimilarityFromDistance: the largest distance
// whose similarity still reaches minSimilarity.
func MaxDistanceForSimilarity(minSimilarity float64) float64 {
	return 2 * (1 - minSimilarity)
}
