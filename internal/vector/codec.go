package vector

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/kotae/internal/models"
)

// EncodeRaw serializes an embedding into the JSON array text stored on chunks.
func EncodeRaw(v []float32) (string, error) {
	if len(v) == 0 {
		return "", fmt.Errorf("cannot encode empty vector")
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return "", fmt.Errorf("component %d is not finite", i)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode vector: %w", err)
	}
	return string(b), nil
}

// DecodeRaw parses the JSON array text stored on chunks. Malformed input wraps models.ErrIntegrity.
func DecodeRaw(raw string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: stored vector is not a JSON number array: %v", models.ErrIntegrity, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: stored vector is empty", models.ErrIntegrity)
	}
	return v, nil
}

// ToLiteral renders v in the index's native vector literal form, e.g. "[0.1,0.2,0.3]".
func ToLiteral(v []float32) string {
	return pgvector.NewVector(v).String()
}

// FromLiteral parses an index vector literal.
func FromLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: malformed vector literal", models.ErrIntegrity)
	}
	var v pgvector.Vector
	if err := v.Parse(s); err != nil {
		return nil, fmt.Errorf("%w: malformed vector literal: %v", models.ErrIntegrity, err)
	}
	return v.Slice(), nil
}
