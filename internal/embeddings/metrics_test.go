package embeddings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/telemetry"
)

const testModel = "BAAI/bge-small-en-v1.5"

func testMetrics(t *testing.T) (*Metrics, *telemetry.TestTelemetry) {
	t.Helper()
	tt := telemetry.NewTestTelemetry()
	t.Cleanup(func() { _ = tt.Shutdown(context.Background()) })
	return NewMetrics(tt.MeterProvider().Meter(instrumentationName), zap.NewNop()), tt
}

func TestMetrics_RecordGeneration(t *testing.T) {
	m, tt := testMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, testModel, 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, testModel, 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, testModel, 25*time.Millisecond, 5, context.Canceled)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	var calls uint64
	for _, sm := range rm.ScopeMetrics {
		for _, got := range sm.Metrics {
			if got.Name != "chatloop.embedding.duration" {
				continue
			}
			hist, ok := got.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			for _, dp := range hist.DataPoints {
				calls += dp.Count
			}
		}
	}
	assert.Equal(t, uint64(3), calls)
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.embedding.errors", attribute.String("model", testModel)))
}

func TestMetrics_CacheAndFallback(t *testing.T) {
	m, tt := testMetrics(t)
	ctx := context.Background()

	m.RecordCache(ctx, true)
	m.RecordCache(ctx, false)
	m.RecordCache(ctx, false)
	m.RecordFallback(ctx, testModel, stageInit)

	assert.Equal(t, int64(3), tt.Int64Sum(t, "chatloop.embedding.cache_lookups"))
	assert.Equal(t, int64(2), tt.Int64Sum(t, "chatloop.embedding.cache_lookups", attribute.String("result", "miss")))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.embedding.fallbacks", attribute.String("stage", stageInit)))
}

func TestMetrics_ZeroValueRecordsNothing(t *testing.T) {
	m := &Metrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordGeneration(ctx, "m", time.Millisecond, 1, errors.New("x"))
		m.RecordCache(ctx, true)
		m.RecordFallback(ctx, "m", stageEmbed)
	})
}

func TestEngine_RecordsMetrics(t *testing.T) {
	m, tt := testMetrics(t)
	model := &fakeModel{dim: 16, fail: func(text string) bool { return text == "broken" }}

	cfg := EngineConfig{CacheDir: t.TempDir()}
	writeModelDir(t, filepath.Join(cfg.CacheDir, "fast-bge-small-en-v1.5"), map[string]string{
		"model_optimized.onnx": "weights",
	})
	e, err := NewEngine(cfg, WithLoader(fakeLoader(model)), WithMetrics(m))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Embed(ctx, []string{"hello", "broken"})
	require.NoError(t, err)
	_, err = e.Embed(ctx, []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.embedding.cache_lookups", attribute.String("result", "hit")))
	assert.Equal(t, int64(2), tt.Int64Sum(t, "chatloop.embedding.cache_lookups", attribute.String("result", "miss")))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.embedding.fallbacks", attribute.String("stage", stageEmbed)))
}
