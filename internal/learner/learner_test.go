package learner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
)

var testKey = dom.Key{Host: "chat.example.com", Fingerprint: "fp1"}

func TestNewState(t *testing.T) {
	s := NewState(testKey)
	assert.Equal(t, "chat.example.com::fp1", s.DomainKey)
	assert.Equal(t, dom.Labels, s.Labels)
	assert.Empty(t, s.Weights)
	assert.Zero(t, s.Version)
}

func TestClassify_ZeroStateTiesToFirstLabel(t *testing.T) {
	p := Classify(NewState(testKey), []float64{1, 2, 3})
	assert.Equal(t, dom.LabelMessageContainer, p.Label)
	assert.Zero(t, p.Score)
	assert.InDelta(t, 0.5, p.Confidence, 1e-12)
	require.Len(t, p.Scores, len(dom.Labels))
	for i, ls := range p.Scores {
		assert.Equal(t, dom.Labels[i], ls.Label)
	}
}

func TestClassify_TieKeepsDeclarationOrder(t *testing.T) {
	s := NewState(testKey)
	s.Weights[dom.LabelModelTurn] = &LabelWeights{Bias: 1}
	s.Weights[dom.LabelUserTurn] = &LabelWeights{Bias: 1}

	p := Classify(s, nil)
	assert.Equal(t, dom.LabelUserTurn, p.Label)
}

func TestClassify_ShortWeights(t *testing.T) {
	s := NewState(testKey)
	s.Weights[dom.LabelNoise] = &LabelWeights{W: []float64{2}}

	p := Classify(s, []float64{1, 100})
	assert.Equal(t, dom.LabelNoise, p.Label)
	assert.Equal(t, 2.0, p.Score)
}

func TestTrain_Converges(t *testing.T) {
	s := NewState(testKey)
	x := []float64{1, 0, 0.5, 0.25}

	prev := Classify(s, x).Scores[1].Score
	for i := 0; i < 200; i++ {
		Train(s, []Example{{X: x, Label: dom.LabelUserTurn}})
		cur := Classify(s, x).Scores[1].Score
		require.GreaterOrEqual(t, cur, prev, "iteration %d", i)
		prev = cur
	}

	p := Classify(s, x)
	assert.Equal(t, dom.LabelUserTurn, p.Label)
	assert.Greater(t, p.Confidence, 0.9)
	assert.Equal(t, 200, s.Version)
}

func TestTrain_SeparatesLabels(t *testing.T) {
	s := NewState(testKey)
	user := []float64{1, 0}
	noise := []float64{0, 1}
	for i := 0; i < 100; i++ {
		Train(s, []Example{{X: user, Label: dom.LabelUserTurn}, {X: noise, Label: dom.LabelNoise}})
	}
	assert.Equal(t, dom.LabelUserTurn, Classify(s, user).Label)
	assert.Equal(t, dom.LabelNoise, Classify(s, noise).Label)
}

func TestTrain_DimensionDriftResetsWeights(t *testing.T) {
	s := NewState(testKey)
	short := []float64{1, 1, 1}
	for i := 0; i < 50; i++ {
		Train(s, []Example{{X: short, Label: dom.LabelCodeBlock}})
	}
	require.Len(t, s.Weights[dom.LabelCodeBlock].W, 3)
	require.Greater(t, s.Weights[dom.LabelCodeBlock].W[0], 0.0)
	biasBefore := s.Weights[dom.LabelCodeBlock].Bias

	Train(s, []Example{{X: []float64{0, 0, 0, 0, 1}, Label: dom.LabelCodeBlock}})

	assert.Equal(t, 51, s.Version)
	for _, label := range dom.Labels {
		lw := s.Weights[label]
		require.Len(t, lw.W, 5, label.String())
		assert.Equal(t, []float64{0, 0, 0, 0}, lw.W[:4], "%s kept weights from the old length", label)
	}
	// only the new feature moved, by exactly the bias step
	lw := s.Weights[dom.LabelCodeBlock]
	assert.Greater(t, lw.W[4], 0.0)
	assert.InDelta(t, lw.Bias-biasBefore, lw.W[4], 1e-12)
	assert.Less(t, s.Weights[dom.LabelNoise].W[4], 0.0)
}

func TestTrain_Empty(t *testing.T) {
	s := NewState(testKey)
	Train(s, nil)
	assert.Zero(t, s.Version)
}
