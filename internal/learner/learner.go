// Package learner implements the online multi-label linear classifier that
// types DOM candidates and is retrained after every run.
package learner

import (
	"math"
	"time"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
)

// LearningRate is the step size of every online update.
const LearningRate = 0.08

// LabelWeights is one label's linear model.
type LabelWeights struct {
	Bias float64   `json:"bias"`
	W    []float64 `json:"w"`
}

// State is a domain's classifier.
type State struct {
	DomainKey string                      `json:"domainKey"`
	Version   int                         `json:"version"`
	Labels    []dom.Label                 `json:"labels"`
	Weights   map[dom.Label]*LabelWeights `json:"weights"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// NewState returns an untrained state for key.
func NewState(key dom.Key) *State {
	return &State{
		DomainKey: key.String(),
		Labels:    append([]dom.Label(nil), dom.Labels...),
		Weights:   make(map[dom.Label]*LabelWeights, len(dom.Labels)),
		UpdatedAt: time.Now().UTC(),
	}
}

// Example is one labeled training vector.
type Example struct {
	X     []float64
	Label dom.Label
}

// Prediction is the outcome of Classify. Confidence is sigmoid(Score).
type Prediction struct {
	Label      dom.Label    `json:"label"`
	Score      float64      `json:"score"`
	Confidence float64      `json:"confidence"`
	Scores     []LabelScore `json:"scores"`
}

// LabelScore is one label's raw score.
type LabelScore struct {
	Label dom.Label `json:"label"`
	Score float64   `json:"score"`
}

// Classify scores x against every label in declaration order and returns the
// strict maximum; the first label declared wins ties.
func Classify(s *State, x []float64) Prediction {
	var p Prediction
	p.Scores = make([]LabelScore, 0, len(dom.Labels))
	for i, label := range dom.Labels {
		score := s.score(label, x)
		p.Scores = append(p.Scores, LabelScore{Label: label, Score: score})
		if i == 0 || score > p.Score {
			p.Label = label
			p.Score = score
		}
	}
	p.Confidence = sigmoid(p.Score)
	return p
}

// Train applies one online logistic update per example and label, then bumps
// the version. Weights whose length differs from the example vector are reset.
func Train(s *State, examples []Example) {
	if len(examples) == 0 {
		return
	}
	if s.Weights == nil {
		s.Weights = make(map[dom.Label]*LabelWeights, len(dom.Labels))
	}
	for _, ex := range examples {
		for _, label := range dom.Labels {
			lw := s.ensure(label, len(ex.X))
			y := 0.0
			if ex.Label == label {
				y = 1
			}
			g := LearningRate * (y - sigmoid(lw.Bias+dot(lw.W, ex.X)))
			lw.Bias += g
			for i := range lw.W {
				lw.W[i] += g * ex.X[i]
			}
		}
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// ensure returns label's weights sized to dim, zeroing them on drift.
func (s *State) ensure(label dom.Label, dim int) *LabelWeights {
	lw, ok := s.Weights[label]
	if !ok || lw == nil {
		lw = &LabelWeights{W: make([]float64, dim)}
		s.Weights[label] = lw
		return lw
	}
	if len(lw.W) != dim {
		lw.W = make([]float64, dim)
	}
	return lw
}

func (s *State) score(label dom.Label, x []float64) float64 {
	lw, ok := s.Weights[label]
	if !ok || lw == nil {
		return 0
	}
	return lw.Bias + dot(lw.W, x)
}

// dot multiplies over the shorter of the two vectors.
func dot(w, x []float64) float64 {
	n := min(len(w), len(x))
	var sum float64
	for i := 0; i < n; i++ {
		sum += w[i] * x[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
