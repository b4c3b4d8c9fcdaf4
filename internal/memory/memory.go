package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/learner"
	"github.com/fyrsmithlabs/chatloop/internal/plan"
	"github.com/fyrsmithlabs/chatloop/internal/secrets"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// MaxFailureSamples bounds the candidates kept with a failure case.
const MaxFailureSamples = 10

// Snapshot is what a run knows about its domain at start.
// Any field may be nil on a cold start or a failed read.
type Snapshot struct {
	Recipe  *Recipe
	Learner *learner.State
	Metrics *verifier.Metrics
}

// PersistInput is the outcome of a run to be remembered.
type PersistInput struct {
	Key        dom.Key
	RunID      string
	Plan       *plan.Plan
	Metrics    *verifier.Metrics
	Learner    *learner.State
	Candidates []dom.Candidate
}

// PersistResult reports which writes succeeded.
type PersistResult struct {
	RecipeSaved  bool `json:"recipeSaved"`
	LearnerSaved bool `json:"learnerSaved"`
	MetricsSaved bool `json:"metricsSaved"`
	FailureSaved bool `json:"failureSaved"`
	// SecretsRedacted counts secrets removed from failure samples.
	SecretsRedacted int      `json:"secretsRedacted,omitempty"`
	Errors          []string `json:"errors"`
}

// Memory wraps a Store with soft-fail reads and best-effort writes.
type Memory struct {
	store    Store
	logger   *zap.Logger
	scrubber *secrets.Scrubber
	now      func() time.Time
}

// Option configures a Memory.
type Option func(*Memory)

// WithScrubber redacts secrets from failure samples before they are stored.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(m *Memory) {
		m.scrubber = s
	}
}

// New creates a Memory over store.
func New(store Store, logger *zap.Logger, opts ...Option) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Memory{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the domain snapshot. Read failures are logged and treated as absent.
func (m *Memory) Load(ctx context.Context, key dom.Key) Snapshot {
	var snap Snapshot
	var err error

	if snap.Recipe, err = m.store.GetRecipe(ctx, key); err != nil {
		m.readFailed("recipe", key, err)
		snap.Recipe = nil
	}
	if snap.Learner, err = m.store.GetLearnerState(ctx, key); err != nil {
		m.readFailed("learner state", key, err)
		snap.Learner = nil
	}
	if snap.Metrics, err = m.store.GetVerifierMetrics(ctx, key); err != nil {
		m.readFailed("verifier metrics", key, err)
		snap.Metrics = nil
	}
	return snap
}

func (m *Memory) readFailed(what string, key dom.Key, err error) {
	m.logger.Warn("memory read failed, treating as cold start",
		zap.String("record", what),
		zap.String("domain", key.String()),
		zap.Error(err))
}

// Persist writes the run outcome. Every write is attempted independently;
// failures are logged and collected in the result instead of returned.
func (m *Memory) Persist(ctx context.Context, in PersistInput) PersistResult {
	res := PersistResult{Errors: []string{}}
	now := m.now().UTC()

	fail := func(what string, err error) {
		m.logger.Warn("memory write failed",
			zap.String("record", what),
			zap.String("domain", in.Key.String()),
			zap.Error(err))
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	if in.Plan != nil {
		recipe := Recipe{
			Host:        in.Key.Host,
			Fingerprint: in.Key.Fingerprint,
			Selectors:   append([]string{}, in.Plan.Selectors...),
			UpdatedAt:   now,
		}
		if in.Metrics != nil {
			recipe.Quality = in.Metrics.Score
			recipe.Notes = fmt.Sprintf("%s attempt %d status %s", in.Plan.ID, in.Plan.Attempt, in.Metrics.Status)
		}
		if err := m.store.SaveRecipe(ctx, in.Key, recipe); err != nil {
			fail("recipe", err)
		} else {
			res.RecipeSaved = true
		}
	}

	if in.Learner != nil {
		if err := m.store.SaveLearnerState(ctx, in.Key, in.Learner); err != nil {
			fail("learner state", err)
		} else {
			res.LearnerSaved = true
		}
	}

	if in.Metrics != nil {
		if err := m.store.SaveVerifierMetrics(ctx, in.Key, *in.Metrics); err != nil {
			fail("verifier metrics", err)
		} else {
			res.MetricsSaved = true
		}

		if in.Metrics.Status == verifier.StatusFail {
			samples := in.Candidates
			if len(samples) > MaxFailureSamples {
				samples = samples[:MaxFailureSamples]
			}
			scrubbed, redacted := m.scrub(samples)
			res.SecretsRedacted = redacted
			fc := FailureCase{
				Key:        in.Key,
				RunID:      in.RunID,
				Metrics:    *in.Metrics,
				Candidates: scrubbed,
				CreatedAt:  now,
			}
			if err := m.store.SaveFailureCase(ctx, in.Key, fc); err != nil {
				fail("failure case", err)
			} else {
				res.FailureSaved = true
			}
		}
	}

	m.logger.Debug("memory persisted",
		zap.String("domain", in.Key.String()),
		zap.Bool("recipe", res.RecipeSaved),
		zap.Bool("learner", res.LearnerSaved),
		zap.Bool("metrics", res.MetricsSaved),
		zap.Bool("failure", res.FailureSaved),
		zap.Int("secrets_redacted", res.SecretsRedacted),
		zap.Int("errors", len(res.Errors)))
	return res
}

// scrub copies samples with secrets redacted from their text.
func (m *Memory) scrub(samples []dom.Candidate) ([]dom.Candidate, int) {
	out := append([]dom.Candidate{}, samples...)
	if !m.scrubber.Enabled() {
		return out, 0
	}
	redacted := 0
	for i := range out {
		res := m.scrubber.Scrub(out[i].Text)
		if res.HasFindings() {
			out[i].Text = res.Text
			redacted += len(res.Findings)
		}
	}
	return out, redacted
}
