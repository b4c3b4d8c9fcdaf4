//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedModel runs a local ONNX model through fastembed-go.
type FastEmbedModel struct {
	model     *fastembed.FlagEmbedding
	dimension int
	mu        sync.Mutex
}

// LoadFastEmbed is the default ModelLoader. The caller must have verified the
// assets under cfg.CacheDir/cfg.Spec.DirName; fastembed would otherwise try
// to download a missing model.
func LoadFastEmbed(_ context.Context, cfg ModelConfig) (Model, error) {
	libPath, err := findONNXRuntime(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	if err := useONNXRuntime(libPath); err != nil {
		return nil, fmt.Errorf("setting ONNX_PATH: %w", err)
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := cfg.ShowProgress

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.EmbeddingModel(cfg.Spec.DirName),
		CacheDir:             cfg.CacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing FastEmbed: %v", ErrModelUnavailable, err)
	}

	return &FastEmbedModel{
		model:     flagEmbed,
		dimension: cfg.Spec.Dimension,
	}, nil
}

// Embed generates pooled, normalized embeddings for texts.
func (m *FastEmbedModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	vectors, err := m.model.PassageEmbed(texts, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	for i := range vectors {
		vectors[i] = l2Normalize(vectors[i])
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the current model.
func (m *FastEmbedModel) Dimension() int {
	return m.dimension
}

// Close releases the ONNX session.
func (m *FastEmbedModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model != nil {
		err := m.model.Destroy()
		m.model = nil
		return err
	}
	return nil
}
