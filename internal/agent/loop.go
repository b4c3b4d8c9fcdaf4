// Package agent runs the closed extraction loop: classify candidates, search
// plans, verify them, retrain on the best attempt and remember the outcome.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/features"
	"github.com/fyrsmithlabs/chatloop/internal/learner"
	"github.com/fyrsmithlabs/chatloop/internal/logging"
	"github.com/fyrsmithlabs/chatloop/internal/memory"
	"github.com/fyrsmithlabs/chatloop/internal/plan"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// Config holds loop tuning.
type Config struct {
	// MaxAttempts bounds plans per run when a request does not set it.
	// Default: 8
	MaxAttempts int

	// EarlyExitScore stops the search once an attempt scores strictly above it.
	// Default: 0.82
	EarlyExitScore float64

	// MaxTrainExamples caps examples per training pass.
	// Default: 200
	MaxTrainExamples int

	// RequireModel is the default for requests that omit requireModel.
	RequireModel bool

	// SnapshotLimit caps the DOM snapshot echoed in the trace, in runes.
	// Default: 40000
	SnapshotLimit int
}

// DefaultConfig returns the standard loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      plan.DefaultMaxAttempts,
		EarlyExitScore:   0.82,
		MaxTrainExamples: 200,
		RequireModel:     true,
		SnapshotLimit:    40000,
	}
}

// ApplyDefaults sets default values for unset numeric fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.EarlyExitScore == 0 {
		c.EarlyExitScore = d.EarlyExitScore
	}
	if c.MaxTrainExamples == 0 {
		c.MaxTrainExamples = d.MaxTrainExamples
	}
	if c.SnapshotLimit == 0 {
		c.SnapshotLimit = d.SnapshotLimit
	}
}

// Loop is the closed-loop extraction engine. It is not safe for concurrent
// Run calls; callers serialize runs.
type Loop struct {
	config    Config
	embedder  features.Embedder
	extractor *features.Extractor
	memory    *memory.Memory
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newRunID  func() string
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Loop) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// New creates a Loop.
func New(config Config, embedder features.Embedder, mem *memory.Memory, opts ...Option) (*Loop, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if mem == nil {
		return nil, fmt.Errorf("%w: memory is required", ErrInvalidConfig)
	}
	config.ApplyDefaults()

	l := &Loop{
		config:   config,
		embedder: embedder,
		memory:   mem,
		logger:   logging.Nop(),
		tracer:   otel.Tracer("chatloop.agent"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.extractor = features.New(embedder, l.logger.Underlying())
	return l, nil
}

// run carries one invocation's working state.
type run struct {
	req         Request
	key         dom.Key
	maxAttempts int
	start       time.Time
	trace       *Trace
}

func (r *run) enter(s State) {
	r.trace.States = append(r.trace.States, s)
}

// Run executes one invocation. It returns an error only for invalid requests
// and for cancellation or embedding failures; the model gate and storage
// failures are reported in the Response.
func (l *Loop) Run(ctx context.Context, req Request) (*Response, error) {
	r := &run{
		req:   req,
		key:   req.Key(),
		start: l.now(),
		trace: &Trace{RunID: l.newRunID(), Attempts: []Attempt{}},
	}

	// INIT
	r.enter(StateInit)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r.maxAttempts = req.MaxAttempts
	if r.maxAttempts == 0 {
		r.maxAttempts = l.config.MaxAttempts
	}
	requireModel := l.config.RequireModel
	if req.RequireModel != nil {
		requireModel = *req.RequireModel
	}
	r.trace.DOMSnapshot = truncateRunes(req.DOMSnapshot, l.config.SnapshotLimit)
	r.trace.ExtractionGoals = req.ExtractionGoals

	ctx = logging.WithRunID(ctx, r.trace.RunID)
	ctx = logging.WithDomain(ctx, r.key.Host, r.key.Fingerprint)
	ctx, span := l.tracer.Start(ctx, "Loop.Run", trace.WithAttributes(
		attribute.String("host", r.key.Host),
		attribute.Int("candidates", len(req.Candidates)),
		attribute.Int("max_attempts", r.maxAttempts),
	))
	defer span.End()

	resp, err := l.run(ctx, r, requireModel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	status := "none"
	if resp.BestExtraction != nil {
		status = string(resp.BestExtraction.Metrics.Status)
	}
	RunsTotal.WithLabelValues(resp.Mode, status).Inc()
	span.SetAttributes(
		attribute.String("mode", resp.Mode),
		attribute.Int("attempts", len(r.trace.Attempts)),
	)
	span.SetStatus(codes.Ok, "success")
	return resp, nil
}

func (l *Loop) run(ctx context.Context, r *run, requireModel bool) (*Response, error) {
	// LOAD_MEMORY
	r.enter(StateLoadMemory)
	snap := l.memory.Load(ctx, r.key)
	state := snap.Learner
	if state == nil {
		state = learner.NewState(r.key)
	}
	if snap.Metrics != nil {
		r.trace.Learned.PriorScore = snap.Metrics.Score
	}
	if snap.Recipe != nil {
		l.logger.Debug(ctx, "recipe loaded",
			zap.Int("selectors", len(snap.Recipe.Selectors)),
			zap.Float64("quality", snap.Recipe.Quality))
	}

	// EXTRACT_FEATURES
	r.enter(StateExtractFeatures)
	status := l.embedder.Init(ctx)
	if requireModel && !status.ModelLoaded {
		l.logger.Warn(ctx, "embedding model required but unavailable",
			zap.String("reason", status.FallbackReason))
		r.trace.ElapsedMs = l.now().Sub(r.start).Milliseconds()
		return &Response{
			OK:    false,
			Mode:  ModeModelUnavailable,
			Error: status.FallbackReason,
			Trace: &Trace{RunID: r.trace.RunID, States: r.trace.States, Attempts: []Attempt{}, ElapsedMs: r.trace.ElapsedMs},
		}, nil
	}
	feats, err := l.extractor.Extract(ctx, r.req.Candidates)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	r.trace.Embedding = feats.Meta

	// CLASSIFY
	r.enter(StateClassify)
	predictions := make([]learner.Prediction, len(r.req.Candidates))
	confidences := make([]float64, len(r.req.Candidates))
	for i, vec := range feats.Vectors {
		predictions[i] = learner.Classify(state, vec)
		confidences[i] = predictions[i].Confidence
	}

	// SEARCH
	r.enter(StateSearch)
	plans := plan.Generate(r.req.Candidates, confidences, r.maxAttempts)
	r.trace.PlansGenerated = len(plans)

	var (
		best        *plan.Plan
		bestItems   []dom.Candidate
		bestIdx     []int
		bestMetrics verifier.Metrics
	)
	for i := range plans {
		p := plans[i]
		selected, idx := p.Select(r.req.Candidates)
		items := make([]dom.Candidate, len(selected))
		for n, c := range selected {
			items[n] = c.Relabel(predictions[idx[n]].Label)
		}
		m := verifier.Verify(items)
		r.trace.Attempts = append(r.trace.Attempts, Attempt{
			PlanID:    p.ID,
			Attempt:   p.Attempt,
			Selectors: p.Selectors,
			ItemCount: len(items),
			Metrics:   m,
		})
		l.logger.Trace(ctx, "attempt verified",
			zap.String("plan", p.ID),
			zap.Int("items", len(items)),
			zap.Float64("score", m.Score))

		if best == nil || m.Score > bestMetrics.Score {
			best, bestItems, bestIdx, bestMetrics = &plans[i], items, idx, m
		}
		if m.Score > l.config.EarlyExitScore {
			r.trace.EarlyExit = true
			EarlyExitsTotal.Inc()
			break
		}
	}
	AttemptsPerRun.Observe(float64(len(r.trace.Attempts)))

	// SELECT_BEST
	r.enter(StateSelectBest)
	if best == nil {
		bestItems = []dom.Candidate{}
		bestMetrics = verifier.Verify(nil)
	}
	BestScore.Observe(bestMetrics.Score)

	// TRAIN
	r.enter(StateTrain)
	examples := trainingExamples(bestItems, bestIdx, feats.Vectors, l.config.MaxTrainExamples)
	learner.Train(state, examples)
	r.trace.Learned.BestScore = bestMetrics.Score
	r.trace.Learned.ScoreDelta = bestMetrics.Score - r.trace.Learned.PriorScore
	r.trace.Learned.TrainedExamples = len(examples)
	r.trace.Learned.LearnerVersion = state.Version

	// PERSIST
	r.enter(StatePersist)
	persisted := l.memory.Persist(ctx, memory.PersistInput{
		Key:        r.key,
		RunID:      r.trace.RunID,
		Plan:       best,
		Metrics:    &bestMetrics,
		Learner:    state,
		Candidates: r.req.Candidates,
	})
	if len(persisted.Errors) > 0 {
		PersistErrorsTotal.Add(float64(len(persisted.Errors)))
	}

	// RESPOND
	r.enter(StateRespond)
	r.trace.ElapsedMs = l.now().Sub(r.start).Milliseconds()

	l.logger.Info(ctx, "loop run complete",
		zap.Int("candidates", len(r.req.Candidates)),
		zap.Int("attempts", len(r.trace.Attempts)),
		zap.Float64("best_score", bestMetrics.Score),
		zap.String("status", string(bestMetrics.Status)),
		zap.Bool("early_exit", r.trace.EarlyExit),
		zap.Int("persist_errors", len(persisted.Errors)))

	return &Response{
		OK:   true,
		Mode: ModeLoop,
		BestExtraction: &Extraction{
			Items:   bestItems,
			Recipe:  best,
			Metrics: bestMetrics,
		},
		Trace: r.trace,
		PersistedUpdates: &PersistedUpdates{
			DomainKey:     r.key.String(),
			PersistResult: persisted,
			MaxAttempts:   r.maxAttempts,
		},
	}, nil
}

// trainingExamples labels the best items: positives first, then NOISE
// negatives, capped at limit. idx maps items back to feature vectors.
func trainingExamples(items []dom.Candidate, idx []int, vectors [][]float64, limit int) []learner.Example {
	var positives, negatives []learner.Example
	for n, it := range items {
		ex := learner.Example{X: vectors[idx[n]], Label: it.Type}
		switch {
		case it.Type.IsPositive():
			positives = append(positives, ex)
		case it.Type == dom.LabelNoise:
			negatives = append(negatives, ex)
		}
	}
	examples := append(positives, negatives...)
	if len(examples) > limit {
		examples = examples[:limit]
	}
	return examples
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
