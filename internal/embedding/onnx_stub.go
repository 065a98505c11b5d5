//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/config"
)

var errNoCGO = errors.New("ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider stub type when built without CGO (see onnx.go for real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO.
func NewONNXProvider(_ config.EmbeddingConfig) (*ONNXProvider, error) {
	return nil, errNoCGO
}

// CreateEmbeddings always fails.
func (p *ONNXProvider) CreateEmbeddings(context.Context, string, []string) ([][]float32, error) {
	return nil, errNoCGO
}

// Dimensions returns 0.
func (p *ONNXProvider) Dimensions() int { return 0 }

// Close is a no-op.
func (p *ONNXProvider) Close() error { return nil }
