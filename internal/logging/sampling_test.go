package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// sampledLogger logs through newSampledCore into an observer. The long tick
// keeps the sampler counters from resetting mid-test.
func sampledLogger(levels map[zapcore.Level]LevelSampling) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{Enabled: true, Tick: time.Minute, Levels: levels})
	return &Logger{zap: zap.New(sampled), config: NewDefaultConfig()}, observed
}

func TestNewSampledCore_DisabledReturnsCore(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{}))
}

func TestSampling_DefaultsBoundDebugNotTrace(t *testing.T) {
	logger, observed := sampledLogger(defaultLevelSampling())
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		logger.Debug(ctx, "attempt scored")
		logger.Trace(ctx, "vector computed")
	}

	assert.Equal(t, 32, observed.FilterMessage("attempt scored").Len())
	assert.Equal(t, 200, observed.FilterMessage("vector computed").Len())
}

func TestSampling_InfoThereafter(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSampling{
		zapcore.InfoLevel: {Initial: 5, Thereafter: 10},
	})
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		logger.Info(ctx, "loop run complete")
	}

	// 5 initial, then every 10th of the remaining 100.
	assert.Equal(t, 15, observed.FilterMessage("loop run complete").Len())
}

func TestSampling_ErrorsAlwaysPass(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSampling{
		zapcore.InfoLevel: {Initial: 1},
		zapcore.WarnLevel: {Initial: 1},
	})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		logger.Error(ctx, "failure index write failed")
	}

	assert.Equal(t, 100, observed.FilterMessage("failure index write failed").Len())
}

func TestSampling_UnconfiguredLevelsPass(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSampling{
		zapcore.WarnLevel: {Initial: 2},
	})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		logger.Info(ctx, "plan scored")
		logger.Warn(ctx, "persist failed")
	}

	assert.Equal(t, 50, observed.FilterMessage("plan scored").Len())
	assert.Equal(t, 2, observed.FilterMessage("persist failed").Len())
}

func TestSampling_DistinctMessagesCountedSeparately(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSampling{
		zapcore.DebugLevel: {Initial: 3},
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		logger.Debug(ctx, "plan window")
		logger.Debug(ctx, "recipe selected")
	}

	assert.Equal(t, 3, observed.FilterMessage("plan window").Len())
	assert.Equal(t, 3, observed.FilterMessage("recipe selected").Len())
}

func TestLevelFilterCore_WithKeepsFilter(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	filtered := &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }}
	logger := &Logger{zap: zap.New(filtered), config: NewDefaultConfig()}
	ctx := context.Background()

	child := logger.With(zap.String("component", "memory"))
	child.Info(ctx, "learner saved")
	child.Warn(ctx, "metrics not saved")
	child.Error(ctx, "store closed")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "store closed", entries[0].Message)
	assert.Equal(t, "memory", entries[0].ContextMap()["component"])
}
