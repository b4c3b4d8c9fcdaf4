package logging

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, down to TraceLevel, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger with redaction rules from NewDefaultConfig
// available to AssertNoSecrets.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// Messages returns the entries whose message contains msg.
func (t *TestLogger) Messages(msg string) []observer.LoggedEntry {
	return t.observed.FilterMessageSnippet(msg).All()
}

// Reset discards recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.Messages(msg) {
		if e.Level == level {
			return
		}
	}
	tb.Errorf("no %v entry containing %q among %d entries", level, msg, len(t.All()))
}

// AssertField fails tb unless an entry with message msg has key equal to want.
// Values are compared through their encoded form.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && fmt.Sprint(got) == fmt.Sprint(want) {
			return
		}
	}
	tb.Errorf("no entry %q with %s=%v", msg, key, want)
}

// AssertTraceCorrelation fails tb unless entry msg carries a trace_id.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if _, ok := e.ContextMap()["trace_id"]; ok {
			return
		}
	}
	tb.Errorf("entry %q has no trace_id", msg)
}

// AssertNoSecrets fails tb when a string value under a redacted key is
// present, or when any message or string value matches a redaction pattern.
// The observer sees fields before encoding, so this catches call sites that
// would rely on the encoder to hide a secret.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	cfg := t.config.Redaction
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, e := range t.All() {
		if leaks(e.Message) {
			tb.Errorf("secret in message %q", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType || f.String == "" {
				continue
			}
			for _, k := range cfg.Fields {
				if strings.EqualFold(f.Key, k) && f.String != redacted {
					tb.Errorf("field %q in %q is not redacted", f.Key, e.Message)
				}
			}
			if leaks(f.String) {
				tb.Errorf("secret in field %q of %q", f.Key, e.Message)
			}
		}
	}
}
