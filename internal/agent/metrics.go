package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts loop runs.
	// Labels: mode (agent_loop, agent_model_unavailable), status (PASS, WARN, FAIL, none)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatloop",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total loop runs by response mode and best verifier status",
		},
		[]string{"mode", "status"},
	)

	// EarlyExitsTotal counts runs that stopped before exhausting their plans.
	EarlyExitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatloop",
			Subsystem: "agent",
			Name:      "early_exits_total",
			Help:      "Total runs that stopped early on a high-scoring attempt",
		},
	)

	// BestScore tracks the best verifier score per run.
	BestScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatloop",
			Subsystem: "agent",
			Name:      "best_score",
			Help:      "Best verifier score of each run",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.45, 0.5, 0.6, 0.7, 0.8, 0.82, 0.9, 1},
		},
	)

	// AttemptsPerRun tracks how many plans each run evaluated.
	AttemptsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatloop",
			Subsystem: "agent",
			Name:      "attempts_per_run",
			Help:      "Number of plans evaluated per run",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12, 16, 32, 64},
		},
	)

	// PersistErrorsTotal counts best-effort memory writes that failed.
	PersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatloop",
			Subsystem: "agent",
			Name:      "persist_errors_total",
			Help:      "Total memory writes that failed during PERSIST",
		},
	)
)
