package memory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
)

var indexTracer = otel.Tracer("chatloop.memory.failure_index")

// Embedder is the part of the embedding engine the failure index needs.
type Embedder interface {
	Init(ctx context.Context) embeddings.Status
	Embed(ctx context.Context, texts []string) (embeddings.Result, error)
}

// FailureIndexConfig configures the chromem-backed failure index.
type FailureIndexConfig struct {
	// Path is the persistence directory.
	// Default: "~/.config/chatloop/failures"
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *FailureIndexConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/chatloop/failures"
	}
}

// SimilarFailure is one failure index hit.
type SimilarFailure struct {
	ID          string  `json:"id"`
	Host        string  `json:"host"`
	Fingerprint string  `json:"domainFingerprint"`
	RunID       string  `json:"runId"`
	Status      string  `json:"status"`
	Score       float64 `json:"score"`
	Similarity  float32 `json:"similarity"`
	Content     string  `json:"content"`
}

// FailureIndex makes failure cases searchable by text similarity.
type FailureIndex struct {
	db       *chromem.DB
	embedder Embedder
	logger   *zap.Logger
}

// NewFailureIndex opens a persistent index at config.Path.
func NewFailureIndex(config FailureIndexConfig, embedder Embedder, logger *zap.Logger) (*FailureIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("failure index initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress))
	return &FailureIndex{db: db, embedder: embedder, logger: logger}, nil
}

// collectionName includes the vector dimension so model and heuristic
// vectors never share a collection.
func (i *FailureIndex) collectionName(ctx context.Context) string {
	return fmt.Sprintf("failures_%d", i.embedder.Init(ctx).Dimension)
}

func (i *FailureIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		res, err := i.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(res.Vectors) != 1 {
			return nil, embeddings.ErrEmbeddingFailed
		}
		return res.Vectors[0], nil
	}
}

// Add indexes fc under its run id.
func (i *FailureIndex) Add(ctx context.Context, fc FailureCase) error {
	ctx, span := indexTracer.Start(ctx, "FailureIndex.Add")
	defer span.End()

	collection, err := i.db.GetOrCreateCollection(i.collectionName(ctx), nil, i.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting collection: %w", err)
	}

	id := fc.RunID
	if id == "" {
		id = uuid.NewString()
	}
	doc := chromem.Document{
		ID:      id,
		Content: failureContent(fc),
		Metadata: map[string]string{
			"host":        fc.Key.Host,
			"fingerprint": fc.Key.Fingerprint,
			"run_id":      fc.RunID,
			"status":      string(fc.Metrics.Status),
			"score":       strconv.FormatFloat(fc.Metrics.Score, 'f', 4, 64),
		},
	}
	if err := collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding failure case: %w", err)
	}

	span.SetAttributes(attribute.String("host", fc.Key.Host))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Similar returns up to k failure cases closest to text.
func (i *FailureIndex) Similar(ctx context.Context, text string, k int) ([]SimilarFailure, error) {
	ctx, span := indexTracer.Start(ctx, "FailureIndex.Similar")
	defer span.End()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	collection := i.db.GetCollection(i.collectionName(ctx), i.embeddingFunc())
	if collection == nil || collection.Count() == 0 {
		return []SimilarFailure{}, nil
	}
	k = min(k, collection.Count())

	results, err := collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying failure index: %w", err)
	}

	out := make([]SimilarFailure, len(results))
	for n, r := range results {
		score, _ := strconv.ParseFloat(r.Metadata["score"], 64)
		out[n] = SimilarFailure{
			ID:          r.ID,
			Host:        r.Metadata["host"],
			Fingerprint: r.Metadata["fingerprint"],
			RunID:       r.Metadata["run_id"],
			Status:      r.Metadata["status"],
			Score:       score,
			Similarity:  r.Similarity,
			Content:     r.Content,
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

// failureContent is the indexed text: the verdict followed by the sampled
// candidates' text.
func failureContent(fc FailureCase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s score=%.3f messages=%d", fc.Metrics.Status, fc.Metrics.Score, fc.Metrics.MessageCount)
	for _, c := range fc.Candidates {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(text)
	}
	return b.String()
}

// IndexingStore decorates a Store so that saved failure cases are also indexed.
type IndexingStore struct {
	Store
	index  *FailureIndex
	logger *zap.Logger
}

// NewIndexingStore wraps store.
func NewIndexingStore(store Store, index *FailureIndex, logger *zap.Logger) *IndexingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexingStore{Store: store, index: index, logger: logger}
}

// SaveFailureCase saves fc, then indexes it. Index errors are logged only.
func (s *IndexingStore) SaveFailureCase(ctx context.Context, key dom.Key, fc FailureCase) error {
	if err := s.Store.SaveFailureCase(ctx, key, fc); err != nil {
		return err
	}
	if err := s.index.Add(ctx, fc); err != nil {
		s.logger.Warn("indexing failure case failed",
			zap.String("domain", key.String()),
			zap.String("run_id", fc.RunID),
			zap.Error(err))
	}
	return nil
}

var _ Store = (*IndexingStore)(nil)
