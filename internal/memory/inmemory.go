package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/learner"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// InMemoryStore keeps everything in process memory. Values are deep-copied
// on the way in and out so callers never share state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	recipes  map[dom.Key]Recipe
	learners map[dom.Key][]byte
	metrics  map[dom.Key]verifier.Metrics
	failures map[dom.Key][]FailureCase
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		recipes:  make(map[dom.Key]Recipe),
		learners: make(map[dom.Key][]byte),
		metrics:  make(map[dom.Key]verifier.Metrics),
		failures: make(map[dom.Key][]FailureCase),
	}
}

func (s *InMemoryStore) GetRecipe(ctx context.Context, key dom.Key) (*Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[key]
	if !ok {
		return nil, nil
	}
	r.Selectors = append([]string{}, r.Selectors...)
	return &r, nil
}

func (s *InMemoryStore) GetLearnerState(ctx context.Context, key dom.Key) (*learner.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.learners[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var state learner.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding learner state: %w", err)
	}
	return &state, nil
}

func (s *InMemoryStore) GetVerifierMetrics(ctx context.Context, key dom.Key) (*verifier.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metrics[key]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *InMemoryStore) SaveRecipe(ctx context.Context, key dom.Key, recipe Recipe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recipe.Selectors = append([]string{}, recipe.Selectors...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[key] = recipe
	return nil
}

func (s *InMemoryStore) SaveLearnerState(ctx context.Context, key dom.Key, state *learner.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: nil learner state", ErrInvalidConfig)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding learner state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.learners[key] = data
	return nil
}

func (s *InMemoryStore) SaveFailureCase(ctx context.Context, key dom.Key, fc FailureCase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fc.Candidates = append([]dom.Candidate{}, fc.Candidates...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.failures[key], fc)
	return nil
}

func (s *InMemoryStore) SaveVerifierMetrics(ctx context.Context, key dom.Key, metrics verifier.Metrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[key] = metrics
	return nil
}

// FailureCases returns the failure cases stored for key, oldest first.
func (s *InMemoryStore) FailureCases(_ context.Context, key dom.Key) ([]FailureCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FailureCase(nil), s.failures[key]...), nil
}

var _ Store = (*InMemoryStore)(nil)
