package embeddings

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// EngineConfig holds configuration for the embedding engine.
type EngineConfig struct {
	// Model is the embedding model name.
	// Default: BAAI/bge-small-en-v1.5 (384 dimensions)
	Model string

	// CacheDir holds one directory per model, each with a checksums.json.
	CacheDir string

	// MaxChars truncates normalized text before embedding.
	// Default: 1000
	MaxChars int

	// CacheSize bounds the vector cache.
	// Default: 128
	CacheSize int

	// ShowProgress enables fastembed progress bars.
	ShowProgress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *EngineConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".", "local_cache")
	}
	if c.MaxChars == 0 {
		c.MaxChars = 1000
	}
	if c.CacheSize == 0 {
		c.CacheSize = 128
	}
}

// Validate validates the configuration.
func (c *EngineConfig) Validate() error {
	if c.MaxChars < 0 {
		return fmt.Errorf("%w: max chars must be positive", ErrInvalidConfig)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Status describes the engine's model state after Init.
type Status struct {
	ModelLoaded    bool   `json:"modelLoaded"`
	Model          string `json:"model"`
	Dimension      int    `json:"dimension"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Result is the output of one Embed call.
type Result struct {
	Vectors   [][]float32
	Model     string
	Dimension int
	CacheHits int
	Duration  time.Duration
}

// Engine maps text to vectors with a verified local model or the heuristic fallback.
type Engine struct {
	config  EngineConfig
	logger  *zap.Logger
	metrics *Metrics
	loader  ModelLoader

	initOnce sync.Once
	model    Model
	status   Status

	cache *lru.Cache[string, []float32]
	// queue is a one-slot token channel serializing Embed calls.
	queue chan struct{}

	computed atomic.Int64
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLoader replaces the FastEmbed loader (tests, alternative backends).
func WithLoader(loader ModelLoader) EngineOption {
	return func(e *Engine) {
		if loader != nil {
			e.loader = loader
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine creates an engine. The model is not touched until Init or the first Embed.
func NewEngine(config EngineConfig, opts ...EngineOption) (*Engine, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	e := &Engine{
		config: config,
		logger: zap.NewNop(),
		loader: LoadFastEmbed,
		cache:  cache,
		queue:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(otel.Meter(instrumentationName), e.logger)
	}
	return e, nil
}

// Init verifies and loads the model once. It never fails: any problem
// disables the model for the engine's lifetime and is reported in the status.
func (e *Engine) Init(ctx context.Context) Status {
	e.initOnce.Do(func() {
		e.status = e.load(ctx)
		if e.status.ModelLoaded {
			e.logger.Info("embedding model loaded",
				zap.String("model", e.status.Model),
				zap.Int("dimension", e.status.Dimension))
		} else {
			e.logger.Warn("embedding model disabled, using heuristic vectors",
				zap.String("model", e.config.Model),
				zap.String("reason", e.status.FallbackReason))
			e.metrics.RecordFallback(ctx, e.config.Model, stageInit)
		}
	})
	return e.status
}

// Status returns the model state, initializing the engine if needed.
func (e *Engine) Status(ctx context.Context) Status {
	return e.Init(ctx)
}

func (e *Engine) load(ctx context.Context) Status {
	fallback := func(reason string) Status {
		return Status{
			Model:          FallbackModelName,
			Dimension:      FallbackDimension,
			FallbackReason: reason,
		}
	}

	spec, err := LookupModel(e.config.Model)
	if err != nil {
		return fallback(err.Error())
	}

	dir := filepath.Join(e.config.CacheDir, spec.DirName)
	if _, err := VerifyAssets(dir); err != nil {
		return fallback(fmt.Sprintf("integrity check failed: %v", err))
	}

	model, err := e.loader(ctx, ModelConfig{
		Spec:         spec,
		CacheDir:     e.config.CacheDir,
		ShowProgress: e.config.ShowProgress,
	})
	if err != nil {
		return fallback(err.Error())
	}

	dim := model.Dimension()
	if dim <= 0 {
		dim = spec.Dimension
	}
	e.model = model
	return Status{ModelLoaded: true, Model: spec.Name, Dimension: dim}
}

// Embed returns one vector per text, in order. Texts are processed
// sequentially; callers are served one at a time through the request queue.
func (e *Engine) Embed(ctx context.Context, texts []string) (Result, error) {
	select {
	case e.queue <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-e.queue }()

	status := e.Init(ctx)
	start := time.Now()
	result := Result{
		Vectors:   make([][]float32, 0, len(texts)),
		Model:     status.Model,
		Dimension: status.Dimension,
	}

	var genErr error
	defer func() {
		if len(texts) > 0 {
			e.metrics.RecordGeneration(ctx, status.Model, time.Since(start), len(texts), genErr)
		}
	}()

	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			genErr = err
			return Result{}, err
		}

		key := normalize(text, e.config.MaxChars)
		if vec, ok := e.cache.Peek(key); ok {
			result.CacheHits++
			e.metrics.RecordCache(ctx, true)
			result.Vectors = append(result.Vectors, clone(vec))
			continue
		}
		e.metrics.RecordCache(ctx, false)

		vec, cacheable := e.compute(ctx, key, status)
		if cacheable {
			e.cache.ContainsOrAdd(key, vec)
		}
		result.Vectors = append(result.Vectors, clone(vec))
	}

	result.Duration = time.Since(start)
	return result, nil
}

// compute embeds one normalized text. A model failure after a successful
// load is absorbed with the fallback vector padded to the model dimension;
// such vectors are not cached.
func (e *Engine) compute(ctx context.Context, text string, status Status) ([]float32, bool) {
	e.computed.Add(1)

	if !status.ModelLoaded {
		return fallbackVector(text, e.config.MaxChars), true
	}

	vectors, err := e.model.Embed(ctx, []string{text})
	if err == nil && len(vectors) == 1 && len(vectors[0]) == status.Dimension {
		return l2Normalize(vectors[0]), true
	}
	if err == nil {
		err = fmt.Errorf("%w: model returned %d vectors", ErrEmbeddingFailed, len(vectors))
	}

	e.logger.Warn("embedding failed, padding heuristic vector", zap.Error(err))
	e.metrics.RecordFallback(ctx, status.Model, stageEmbed)

	padded := make([]float32, status.Dimension)
	copy(padded, fallbackVector(text, e.config.MaxChars))
	return padded, false
}

// Computed returns how many vectors were computed rather than served from cache.
func (e *Engine) Computed() int64 {
	return e.computed.Load()
}

// Close releases the model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// normalize collapses whitespace and truncates to maxChars runes.
func normalize(text string, maxChars int) string {
	s := strings.Join(strings.Fields(text), " ")
	if maxChars > 0 {
		if r := []rune(s); len(r) > maxChars {
			s = string(r[:maxChars])
		}
	}
	return s
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

func clone(vec []float32) []float32 {
	return append([]float32(nil), vec...)
}
