package agent

import (
	"encoding/json"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/features"
	"github.com/fyrsmithlabs/chatloop/internal/memory"
	"github.com/fyrsmithlabs/chatloop/internal/plan"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// Response modes.
const (
	ModeLoop             = "agent_loop"
	ModeModelUnavailable = "agent_model_unavailable"
)

// State is one step of the run state machine.
type State string

const (
	StateInit            State = "INIT"
	StateLoadMemory      State = "LOAD_MEMORY"
	StateExtractFeatures State = "EXTRACT_FEATURES"
	StateClassify        State = "CLASSIFY"
	StateSearch          State = "SEARCH"
	StateSelectBest      State = "SELECT_BEST"
	StateTrain           State = "TRAIN"
	StatePersist         State = "PERSIST"
	StateRespond         State = "RESPOND"
)

// Request is one loop invocation. A nil RequireModel takes the loop's
// configured default.
type Request struct {
	Host              string          `json:"host" validate:"required,max=253"`
	DomainFingerprint string          `json:"domainFingerprint" validate:"required,max=512"`
	Candidates        []dom.Candidate `json:"candidatesFeatures" validate:"dive"`
	ExtractionGoals   json.RawMessage `json:"extractionGoals,omitempty"`
	DOMSnapshot       string          `json:"domSnapshot,omitempty"`
	RequireModel      *bool           `json:"requireModel,omitempty"`
	MaxAttempts       int             `json:"maxAttempts,omitempty" validate:"gte=0,lte=64"`
}

// Key returns the request's memory key.
func (r Request) Key() dom.Key {
	return dom.Key{Host: r.Host, Fingerprint: r.DomainFingerprint}
}

// Response is the loop's answer. Model-gate failures carry OK=false and no extraction.
type Response struct {
	OK               bool              `json:"ok"`
	Mode             string            `json:"mode"`
	Error            string            `json:"error,omitempty"`
	BestExtraction   *Extraction       `json:"bestExtraction,omitempty"`
	Trace            *Trace            `json:"trace,omitempty"`
	PersistedUpdates *PersistedUpdates `json:"persistedUpdates,omitempty"`
}

// Extraction is the winning attempt.
type Extraction struct {
	Items   []dom.Candidate  `json:"items"`
	Recipe  *plan.Plan       `json:"recipe"`
	Metrics verifier.Metrics `json:"metrics"`
}

// Attempt records one evaluated plan.
type Attempt struct {
	PlanID    string           `json:"planId"`
	Attempt   int              `json:"attempt"`
	Selectors []string         `json:"selectors"`
	ItemCount int              `json:"itemCount"`
	Metrics   verifier.Metrics `json:"metrics"`
}

// Learned summarizes what training changed.
type Learned struct {
	PriorScore      float64 `json:"priorScore"`
	BestScore       float64 `json:"bestScore"`
	ScoreDelta      float64 `json:"scoreDelta"`
	TrainedExamples int     `json:"trainedExamples"`
	LearnerVersion  int     `json:"learnerVersion"`
}

// Trace describes how a run went.
type Trace struct {
	RunID           string          `json:"runId"`
	States          []State         `json:"states"`
	Attempts        []Attempt       `json:"attempts"`
	PlansGenerated  int             `json:"plansGenerated"`
	ElapsedMs       int64           `json:"elapsedMs"`
	Embedding       features.Meta   `json:"embedding"`
	Learned         Learned         `json:"learned"`
	ExtractionGoals json.RawMessage `json:"extractionGoals,omitempty"`
	DOMSnapshot     string          `json:"domSnapshot,omitempty"`
	EarlyExit       bool            `json:"earlyExit"`
}

// PersistedUpdates reports the PERSIST step.
type PersistedUpdates struct {
	DomainKey string `json:"domainKey"`
	memory.PersistResult
	MaxAttempts int `json:"maxAttempts"`
}
