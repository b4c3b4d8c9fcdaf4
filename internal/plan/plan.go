// Package plan generates the ordered extraction plans a run evaluates.
package plan

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
)

const (
	// DefaultMaxAttempts bounds the number of plans per run.
	DefaultMaxAttempts = 8

	// MinWindow is the smallest sliding window.
	MinWindow = 6

	// MaxSelectors caps the selectors carried by one plan.
	MaxSelectors = 12
)

// Hints records how a plan's window was chosen.
type Hints struct {
	WindowStart int `json:"windowStart"`
	WindowSize  int `json:"windowSize"`
	RankedCount int `json:"rankedCount"`
}

// Plan is one candidate extraction strategy. An empty Selectors list
// selects every candidate.
type Plan struct {
	ID        string   `json:"id"`
	Selectors []string `json:"selectors"`
	Attempt   int      `json:"attempt"`
	Hints     Hints    `json:"hints"`
}

// SelectsAll reports whether the plan applies to every candidate.
func (p Plan) SelectsAll() bool {
	return len(p.Selectors) == 0
}

// Select returns the candidates (and their indexes) the plan applies to, in input order.
func (p Plan) Select(candidates []dom.Candidate) ([]dom.Candidate, []int) {
	if p.SelectsAll() {
		idx := make([]int, len(candidates))
		for i := range idx {
			idx[i] = i
		}
		return append([]dom.Candidate(nil), candidates...), idx
	}
	want := make(map[string]bool, len(p.Selectors))
	for _, s := range p.Selectors {
		want[s] = true
	}
	var (
		out []dom.Candidate
		idx []int
	)
	for i, c := range candidates {
		if want[c.Selector] {
			out = append(out, c)
			idx = append(idx, i)
		}
	}
	return out, idx
}

// Generate ranks candidates by descending confidence (stable) and slides a
// window of max(MinWindow, ceil(n/3)) one position per attempt, stopping at
// the first empty window. confidences[i] belongs to candidates[i]; a missing
// entry counts as zero. maxAttempts <= 0 means DefaultMaxAttempts.
func Generate(candidates []dom.Candidate, confidences []float64, maxAttempts int) []Plan {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	n := len(candidates)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	conf := func(i int) float64 {
		if i < len(confidences) {
			return confidences[i]
		}
		return 0
	}
	sort.SliceStable(order, func(a, b int) bool {
		return conf(order[a]) > conf(order[b])
	})

	window := max(MinWindow, (n+2)/3)
	plans := make([]Plan, 0, maxAttempts)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := attempt
		if start >= n {
			break
		}
		end := min(n, start+window)

		seen := make(map[string]bool)
		selectors := make([]string, 0, MaxSelectors)
		for _, i := range order[start:end] {
			sel := candidates[i].Selector
			if sel == "" || seen[sel] {
				continue
			}
			seen[sel] = true
			selectors = append(selectors, sel)
			if len(selectors) == MaxSelectors {
				break
			}
		}

		plans = append(plans, Plan{
			ID:        fmt.Sprintf("plan-%d", attempt),
			Selectors: selectors,
			Attempt:   attempt,
			Hints: Hints{
				WindowStart: start,
				WindowSize:  window,
				RankedCount: n,
			},
		})
	}
	return plans
}
