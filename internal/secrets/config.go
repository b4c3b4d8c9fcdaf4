package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled   bool     `koanf:"enabled"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`

	// Rules defaults to DefaultRules() when empty.
	Rules []Rule `koanf:"-"`
}

// Rule detects one kind of secret.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords, when set, must appear somewhere in the text (case-insensitive)
	// before the pattern is tried.
	Keywords []string
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables scrubbing with the built-in rules.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Redaction: DefaultRedaction,
	}
}

func (c Config) compile() ([]compiledRule, []*regexp.Regexp, error) {
	rules := c.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return nil, nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if r.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		cr := compiledRule{id: r.ID, pattern: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		compiled = append(compiled, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		allow = append(allow, re)
	}
	return compiled, allow, nil
}
