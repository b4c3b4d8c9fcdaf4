package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable indicates the local model failed integrity checks or loading.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Model is a loaded embedding backend.
type Model interface {
	// Embed returns one pooled, normalized vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector length produced by Embed.
	Dimension() int
	// Close releases resources held by the model.
	Close() error
}

// ModelSpec describes a supported model: its on-disk directory name inside
// the cache dir and its output dimension.
type ModelSpec struct {
	Name      string
	DirName   string
	Dimension int
}

// ModelConfig is passed to a ModelLoader once the assets have been verified.
type ModelConfig struct {
	Spec      ModelSpec
	CacheDir  string
	MaxLength int
	// ShowProgress enables fastembed progress bars.
	ShowProgress bool
}

// ModelLoader constructs a Model from verified assets.
type ModelLoader func(ctx context.Context, cfg ModelConfig) (Model, error)

// supportedModels maps friendly and fastembed names onto model specs.
var supportedModels = map[string]ModelSpec{
	"BAAI/bge-small-en-v1.5":                 {Name: "BAAI/bge-small-en-v1.5", DirName: "fast-bge-small-en-v1.5", Dimension: 384},
	"BAAI/bge-small-en":                      {Name: "BAAI/bge-small-en", DirName: "fast-bge-small-en", Dimension: 384},
	"BAAI/bge-base-en-v1.5":                  {Name: "BAAI/bge-base-en-v1.5", DirName: "fast-bge-base-en-v1.5", Dimension: 768},
	"BAAI/bge-base-en":                       {Name: "BAAI/bge-base-en", DirName: "fast-bge-base-en", Dimension: 768},
	"sentence-transformers/all-MiniLM-L6-v2": {Name: "sentence-transformers/all-MiniLM-L6-v2", DirName: "fast-all-MiniLM-L6-v2", Dimension: 384},
	// Also accept the fastembed directory names directly
	"fast-bge-small-en-v1.5": {Name: "BAAI/bge-small-en-v1.5", DirName: "fast-bge-small-en-v1.5", Dimension: 384},
	"fast-bge-small-en":      {Name: "BAAI/bge-small-en", DirName: "fast-bge-small-en", Dimension: 384},
	"fast-bge-base-en-v1.5":  {Name: "BAAI/bge-base-en-v1.5", DirName: "fast-bge-base-en-v1.5", Dimension: 768},
	"fast-bge-base-en":       {Name: "BAAI/bge-base-en", DirName: "fast-bge-base-en", Dimension: 768},
	"fast-all-MiniLM-L6-v2":  {Name: "sentence-transformers/all-MiniLM-L6-v2", DirName: "fast-all-MiniLM-L6-v2", Dimension: 384},
}

// LookupModel resolves a model name to its spec.
func LookupModel(name string) (ModelSpec, error) {
	spec, ok := supportedModels[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: unsupported model %q (supported: BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5, sentence-transformers/all-MiniLM-L6-v2)", ErrInvalidConfig, name)
	}
	return spec, nil
}
