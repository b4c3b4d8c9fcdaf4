package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/agent"
	"github.com/fyrsmithlabs/chatloop/internal/config"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
	"github.com/fyrsmithlabs/chatloop/internal/logging"
	"github.com/fyrsmithlabs/chatloop/internal/memory"
	"github.com/fyrsmithlabs/chatloop/internal/secrets"
	"github.com/fyrsmithlabs/chatloop/internal/telemetry"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	engine    *embeddings.Engine
	store     memory.Store
	sqlite    *memory.SQLiteStore
	index     *memory.FailureIndex
	loop      *agent.Loop
}

// newApp loads configuration and wires logging, telemetry, the embedding
// engine, the store and the loop.
//
// With memory set, state lives in process memory and no failure index is opened.
func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.LoadWithFile(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	if cfg.Telemetry.Enabled {
		tel.SetLoggerProvider(global.GetLoggerProvider())
	}

	logger, err := initLogger(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zl := logger.Underlying()

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	a.engine, err = embeddings.NewEngine(embeddings.EngineConfig{
		Model:        cfg.Embeddings.Model,
		CacheDir:     cfg.Embeddings.CacheDir,
		MaxChars:     cfg.Embeddings.MaxChars,
		CacheSize:    cfg.Embeddings.CacheSize,
		ShowProgress: cfg.Embeddings.ShowProgress,
	}, embeddings.WithLogger(zl.Named("embeddings")))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("creating embedding engine: %w", err)
	}

	if flags.memory {
		a.store = memory.NewInMemoryStore()
	} else {
		a.sqlite, err = memory.OpenSQLite(memory.SQLiteConfig{
			Path:        cfg.Storage.Path,
			BusyTimeout: cfg.Storage.BusyTimeoutMS,
		}, zl.Named("sqlite"))
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("opening store: %w", err)
		}
		a.store = a.sqlite

		a.index, err = memory.NewFailureIndex(memory.FailureIndexConfig{
			Path:     cfg.Storage.FailureIndexPath,
			Compress: cfg.Storage.FailureIndexCompress,
		}, a.engine, zl.Named("failure_index"))
		if err != nil {
			// Similarity search is optional; runs still persist to SQLite.
			logger.Warn(ctx, "failure index unavailable", zap.Error(err))
		} else {
			a.store = memory.NewIndexingStore(a.sqlite, a.index, zl.Named("failure_index"))
		}
	}

	scrubber, err := secrets.New(secrets.Config{
		Enabled:   cfg.Scrub.Enabled,
		Redaction: cfg.Scrub.Redaction,
		AllowList: cfg.Scrub.AllowList,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	a.loop, err = agent.New(agent.Config{
		MaxAttempts:      cfg.Agent.MaxAttempts,
		EarlyExitScore:   cfg.Agent.EarlyExitScore,
		MaxTrainExamples: cfg.Agent.MaxTrainExamples,
		RequireModel:     cfg.Agent.RequireModel,
		SnapshotLimit:    cfg.Agent.SnapshotLimit,
	}, a.engine, memory.New(a.store, zl.Named("memory"), memory.WithScrubber(scrubber)),
		agent.WithLogger(logger.Named("agent")),
		agent.WithTracer(tel.Tracer("github.com/fyrsmithlabs/chatloop/internal/agent")),
	)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("creating loop: %w", err)
	}

	return a, nil
}

// initLogger builds the process logger. Console output goes to stderr so
// command results on stdout stay machine readable.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc.Output.Stderr = true
	lc.Fields["version"] = version

	provider := tel.LoggerProvider()
	lc.Output.OTEL = provider != nil
	return logging.NewLogger(lc, provider)
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.sqlite != nil {
		errs = append(errs, a.sqlite.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn(ctx, "shutdown incomplete", zap.Error(err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
