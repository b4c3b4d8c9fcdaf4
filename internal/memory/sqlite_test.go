package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/learner"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "memory.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	r, err := s.GetRecipe(ctx, testKey)
	assert.NoError(t, err)
	assert.Nil(t, r)

	st, err := s.GetLearnerState(ctx, testKey)
	assert.NoError(t, err)
	assert.Nil(t, st)

	m, err := s.GetVerifierMetrics(ctx, testKey)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestSQLiteStore_RecipeUpsert(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRecipe(ctx, testKey, Recipe{Selectors: []string{"#a"}, Quality: 0.4, UpdatedAt: now}))
	require.NoError(t, s.SaveRecipe(ctx, testKey, Recipe{Selectors: []string{"#b", "#c"}, Quality: 0.8, Notes: "n", UpdatedAt: now}))

	r, err := s.GetRecipe(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, testKey.Host, r.Host)
	assert.Equal(t, testKey.Fingerprint, r.Fingerprint)
	assert.Equal(t, []string{"#b", "#c"}, r.Selectors)
	assert.Equal(t, 0.8, r.Quality)
	assert.Equal(t, "n", r.Notes)
	assert.True(t, now.Equal(r.UpdatedAt))
}

func TestSQLiteStore_CompositeKey(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	a := dom.Key{Host: "a::b", Fingerprint: "c"}
	b := dom.Key{Host: "a", Fingerprint: "b::c"}
	require.NoError(t, s.SaveRecipe(ctx, a, Recipe{Selectors: []string{"#a"}}))
	require.NoError(t, s.SaveRecipe(ctx, b, Recipe{Selectors: []string{"#b"}}))

	ra, err := s.GetRecipe(ctx, a)
	require.NoError(t, err)
	rb, err := s.GetRecipe(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"#a"}, ra.Selectors)
	assert.Equal(t, []string{"#b"}, rb.Selectors)
}

func TestSQLiteStore_LearnerRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	state := learner.NewState(testKey)
	learner.Train(state, []learner.Example{
		{X: []float64{1, 0.5}, Label: dom.LabelModelTurn},
		{X: []float64{0, 1}, Label: dom.LabelNoise},
	})
	require.NoError(t, s.SaveLearnerState(ctx, testKey, state))

	got, err := s.GetLearnerState(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.Version, got.Version)
	assert.Equal(t, state.DomainKey, got.DomainKey)
	assert.Equal(t, state.Weights[dom.LabelModelTurn].W, got.Weights[dom.LabelModelTurn].W)

	x := []float64{1, 0.5}
	assert.Equal(t, learner.Classify(state, x).Label, learner.Classify(got, x).Label)
}

func TestSQLiteStore_MetricsAndFailures(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	metrics := verifier.Verify(nil)
	require.NoError(t, s.SaveVerifierMetrics(ctx, testKey, metrics))
	got, err := s.GetVerifierMetrics(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, metrics, *got)

	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, s.SaveFailureCase(ctx, testKey, FailureCase{
			Key: testKey, RunID: id, Metrics: metrics, Candidates: testCandidates(2),
		}))
	}
	cases, err := s.FailureCases(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "r1", cases[0].RunID)
	assert.Len(t, cases[1].Candidates, 2)
}

func TestSQLiteStore_InMemoryDatabase(t *testing.T) {
	s, err := OpenSQLite(SQLiteConfig{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveRecipe(ctx, testKey, Recipe{Selectors: []string{"#x"}}))
	r, err := s.GetRecipe(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestSQLiteStore_WithMemory(t *testing.T) {
	m := New(openTestSQLite(t), nil)
	metrics := verifier.Metrics{Score: 0.3, Status: verifier.StatusFail}

	res := m.Persist(context.Background(), PersistInput{Key: testKey, Metrics: &metrics, Learner: learner.NewState(testKey)})
	assert.Empty(t, res.Errors)
	assert.True(t, res.FailureSaved)
	assert.True(t, res.LearnerSaved)
}
