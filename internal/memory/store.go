// Package memory persists per-domain recipes, classifier state, verifier
// metrics and failure cases, keyed by the (host, fingerprint) pair.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/learner"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// ErrInvalidConfig indicates invalid store configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Recipe is the best extraction plan remembered for a domain.
type Recipe struct {
	Host        string    `json:"host"`
	Fingerprint string    `json:"domainFingerprint"`
	Selectors   []string  `json:"selectors"`
	Quality     float64   `json:"quality"`
	Notes       string    `json:"notes,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FailureCase records a run whose best attempt failed verification.
type FailureCase struct {
	Key        dom.Key          `json:"key"`
	RunID      string           `json:"runId"`
	Metrics    verifier.Metrics `json:"metrics"`
	Candidates []dom.Candidate  `json:"candidates"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Store is the storage contract. Getters return (nil, nil) when nothing is stored.
type Store interface {
	GetRecipe(ctx context.Context, key dom.Key) (*Recipe, error)
	GetLearnerState(ctx context.Context, key dom.Key) (*learner.State, error)
	GetVerifierMetrics(ctx context.Context, key dom.Key) (*verifier.Metrics, error)

	SaveRecipe(ctx context.Context, key dom.Key, recipe Recipe) error
	SaveLearnerState(ctx context.Context, key dom.Key, state *learner.State) error
	SaveFailureCase(ctx context.Context, key dom.Key, fc FailureCase) error
	SaveVerifierMetrics(ctx context.Context, key dom.Key, metrics verifier.Metrics) error
}
