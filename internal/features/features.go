// Package features turns DOM candidates into fixed-length classifier inputs.
package features

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
)

// BaseDimension is the number of hand-crafted scalars preceding the embedding.
const BaseDimension = 13

// Reference viewport used to scale bounding boxes.
const (
	ViewportWidth  = 1920.0
	ViewportHeight = 1080.0

	// topScale spreads the vertical offset over twenty screens of scrolling.
	topScale = 20.0

	maxTextRunes = 2000.0
)

// indicatorLabels are the types with a one-hot flag, in vector order.
var indicatorLabels = []dom.Label{
	dom.LabelUserTurn,
	dom.LabelModelTurn,
	dom.LabelCodeBlock,
	dom.LabelImageBlock,
	dom.LabelFileCard,
}

// Embedder is the part of the embedding engine the extractor needs.
type Embedder interface {
	Init(ctx context.Context) embeddings.Status
	Embed(ctx context.Context, texts []string) (embeddings.Result, error)
}

// Meta describes the embedding pass of one extraction.
type Meta struct {
	Model             string        `json:"model"`
	Dimension         int           `json:"dimension"`
	ModelLoaded       bool          `json:"modelLoaded"`
	FallbackReason    string        `json:"fallbackReason,omitempty"`
	EmbeddingsCount   int           `json:"embeddingsCount"`
	CacheHits         int           `json:"cacheHits"`
	EmbeddingDuration time.Duration `json:"-"`
	EmbeddingMs       int64         `json:"embeddingMs"`
}

// Result holds one vector per candidate, in input order.
type Result struct {
	Vectors [][]float64
	Meta    Meta
}

// Extractor computes feature vectors.
type Extractor struct {
	embedder Embedder
	logger   *zap.Logger
}

// New creates an Extractor backed by embedder.
func New(embedder Embedder, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{embedder: embedder, logger: logger}
}

// Extract returns BaseDimension scalars followed by the embedding for every candidate.
func (x *Extractor) Extract(ctx context.Context, candidates []dom.Candidate) (Result, error) {
	status := x.embedder.Init(ctx)

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.EmbeddingText()
	}

	emb, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding candidates: %w", err)
	}
	if len(emb.Vectors) != len(candidates) {
		return Result{}, fmt.Errorf("%w: got %d vectors for %d candidates",
			embeddings.ErrEmbeddingFailed, len(emb.Vectors), len(candidates))
	}

	vectors := make([][]float64, len(candidates))
	for i, c := range candidates {
		vectors[i] = Vector(c, emb.Vectors[i])
	}

	x.logger.Debug("features extracted",
		zap.Int("candidates", len(candidates)),
		zap.String("model", emb.Model),
		zap.Int("cache_hits", emb.CacheHits))

	model := emb.Model
	if model == "" {
		model = status.Model
	}
	return Result{
		Vectors: vectors,
		Meta: Meta{
			Model:             model,
			Dimension:         status.Dimension,
			ModelLoaded:       status.ModelLoaded,
			FallbackReason:    status.FallbackReason,
			EmbeddingsCount:   len(emb.Vectors),
			CacheHits:         emb.CacheHits,
			EmbeddingDuration: emb.Duration,
			EmbeddingMs:       emb.Duration.Milliseconds(),
		},
	}, nil
}

// Vector builds the feature vector for one candidate from its embedding.
func Vector(c dom.Candidate, embedding []float32) []float64 {
	v := make([]float64, BaseDimension, BaseDimension+len(embedding))
	v[0] = clamp01(c.Confidence)
	v[1] = clamp01(c.BBox.Top / (ViewportHeight * topScale))
	v[2] = clamp01(c.BBox.Left / ViewportWidth)
	v[3] = clamp01(c.BBox.Width / ViewportWidth)
	v[4] = clamp01(c.BBox.Height / ViewportHeight)
	for i, label := range indicatorLabels {
		if c.Type == label {
			v[5+i] = 1
		}
	}
	v[10] = min(1, float64(utf8.RuneCountInString(c.Text))/maxTextRunes)
	if dom.LooksLikeCode(c.Text) {
		v[11] = 1
	}
	if dom.MentionsFile(c.Text) {
		v[12] = 1
	}
	for _, e := range embedding {
		v = append(v, float64(e))
	}
	return v
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
