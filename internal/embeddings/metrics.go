package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/chatloop/internal/embeddings"

// Fallback stages.
const (
	stageInit  = "init"
	stageEmbed = "embed"
)

// Metrics records Embed latency, batch sizes, cache lookups and heuristic
// fallbacks. A Metrics whose instruments failed to register records nothing.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
	cache     metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewMetrics registers the instruments on meter. Registration failures are
// logged and leave the affected instrument unset.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(what string, err error) {
		if err != nil {
			logger.Warn("embedding instrument unavailable", zap.String("instrument", what), zap.Error(err))
		}
	}

	m := &Metrics{}
	var err error
	m.duration, err = meter.Float64Histogram("chatloop.embedding.duration",
		metric.WithDescription("Embed call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	warn("duration", err)
	m.batchSize, err = meter.Int64Histogram("chatloop.embedding.batch_size",
		metric.WithDescription("Texts per Embed call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	warn("batch_size", err)
	m.errors, err = meter.Int64Counter("chatloop.embedding.errors",
		metric.WithDescription("Embed calls that returned an error"),
		metric.WithUnit("{call}"),
	)
	warn("errors", err)
	m.cache, err = meter.Int64Counter("chatloop.embedding.cache_lookups",
		metric.WithDescription("Vector cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	warn("cache_lookups", err)
	m.fallbacks, err = meter.Int64Counter("chatloop.embedding.fallbacks",
		metric.WithDescription("Heuristic vectors served instead of model output"),
		metric.WithUnit("{fallback}"),
	)
	warn("fallbacks", err)
	return m
}

// RecordGeneration records one Embed call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, took time.Duration, batch int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.duration != nil {
		m.duration.Record(ctx, took.Seconds(), attrs)
	}
	if batch > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batch), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordCache records one vector cache lookup.
func (m *Metrics) RecordCache(ctx context.Context, hit bool) {
	if m.cache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordFallback records a heuristic vector served at stage.
func (m *Metrics) RecordFallback(ctx context.Context, model, stage string) {
	if m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("stage", stage),
	))
}
