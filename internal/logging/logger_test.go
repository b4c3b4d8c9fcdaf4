package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)
	return &Logger{zap: zap.New(core), config: NewDefaultConfig()}, observed
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"TRACE", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
		{"", zapcore.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTraceLevel_BelowDebug(t *testing.T) {
	assert.Equal(t, zapcore.Level(-2), TraceLevel)
	assert.False(t, zapcore.DebugLevel.Enabled(TraceLevel))
	assert.True(t, TraceLevel.Enabled(zapcore.DebugLevel))
}

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	assert.Same(t, cfg, logger.config)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestBuildCore_Outputs(t *testing.T) {
	t.Run("stdout only", func(t *testing.T) {
		cfg := NewDefaultConfig()
		core, err := buildCore(cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, core)
	})

	t.Run("otel requested without provider falls back to stdout", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output.OTEL = true
		core, err := buildCore(cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, core)
	})

	t.Run("otel only without provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output.Stdout = false
		cfg.Output.OTEL = true
		_, err := buildCore(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one output")
	})
}

func TestLogger_LevelMethods(t *testing.T) {
	logger, observed := observedLogger(TraceLevel)
	ctx := context.Background()

	logger.Trace(ctx, "attempt verified", zap.Int("items", 3))
	logger.Debug(ctx, "recipe loaded")
	logger.Info(ctx, "loop run complete")
	logger.Warn(ctx, "memory write failed")
	logger.Error(ctx, "run failed")

	entries := observed.All()
	require.Len(t, entries, 5)
	want := []zapcore.Level{TraceLevel, zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		assert.Equal(t, want[i], e.Level)
	}
	assert.Equal(t, int64(3), entries[0].ContextMap()["items"])
}

func TestLogger_DisabledLevelSkipsContextFields(t *testing.T) {
	logger, observed := observedLogger(zapcore.InfoLevel)
	ctx := WithRunID(context.Background(), "run-1")

	logger.Trace(ctx, "attempt verified")
	logger.Debug(ctx, "recipe loaded")
	assert.Zero(t, observed.Len())

	logger.Info(ctx, "loop run complete")
	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "run-1", observed.All()[0].ContextMap()["run.id"])
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger, observed := observedLogger(zapcore.InfoLevel)

	logger.Named("agent").With(zap.String("component", "planner")).Info(context.Background(), "child")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "agent", entries[0].LoggerName)
	assert.Equal(t, "planner", entries[0].ContextMap()["component"])
}

func TestLogger_ContextFieldsFirst(t *testing.T) {
	logger, observed := observedLogger(zapcore.InfoLevel)
	ctx := WithDomain(context.Background(), "chat.example.com", "fp-1")

	logger.Info(ctx, "run", zap.String("mode", "agent_loop"))

	fields := observed.All()[0].Context
	require.Len(t, fields, 3)
	assert.Equal(t, "domain.host", fields[0].Key)
	assert.Equal(t, "mode", fields[2].Key)
}

func TestEncodeLevel_NamesTrace(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(newEncoder("json"), zapcore.AddSync(&buf), TraceLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Trace(context.Background(), "attempt verified")
	require.NoError(t, logger.zap.Sync())

	assert.Contains(t, buf.String(), `"level":"trace"`)
}
