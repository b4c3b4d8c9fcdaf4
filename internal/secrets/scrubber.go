package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// Finding locates one redacted secret in the original text.
type Finding struct {
	RuleID string `json:"ruleId"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Result is the outcome of scrubbing one text.
type Result struct {
	Text     string    `json:"text"`
	Findings []Finding `json:"findings,omitempty"`
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleCounts returns the number of findings per rule ID.
func (r Result) RuleCounts() map[string]int {
	counts := make(map[string]int, len(r.Findings))
	for _, f := range r.Findings {
		counts[f.RuleID]++
	}
	return counts
}

// Scrubber redacts secrets from text. A Scrubber is immutable and safe for
// concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []compiledRule
	allow     []*regexp.Regexp
}

// New compiles cfg into a Scrubber.
func New(cfg Config) (*Scrubber, error) {
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	if !cfg.Enabled {
		return s, nil
	}

	var err error
	s.rules, s.allow, err = cfg.compile()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Enabled reports whether Scrub redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

type span struct{ start, end int }

// Scrub returns text with every secret replaced by the redaction string.
// Overlapping matches collapse into a single redaction.
func (s *Scrubber) Scrub(text string) Result {
	res := Result{Text: text}
	if !s.Enabled() || text == "" {
		return res
	}

	var spans []span
	for _, r := range s.rules {
		if !r.applies(text) {
			continue
		}
		for _, m := range r.pattern.FindAllStringIndex(text, -1) {
			if s.allowed(text[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{RuleID: r.id, Start: m[0], End: m[1]})
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	sort.Slice(res.Findings, func(i, j int) bool { return res.Findings[i].Start < res.Findings[j].Start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(text[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(text[last:])
	res.Text = b.String()
	return res
}

func (r compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping or touching ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}
