package logging

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config describes one process logger. The application config only exposes
// level and format; everything else keeps the defaults below unless a
// command overrides it.
type Config struct {
	Level  zapcore.Level
	Format string
	Output OutputConfig

	Sampling SamplingConfig
	Caller   CallerConfig
	// StacktraceLevel attaches stacks at and above this level. Zero (info)
	// is treated as unset.
	StacktraceLevel zapcore.Level

	// Fields are added to every entry.
	Fields    map[string]string
	Redaction RedactionConfig
}

// OutputConfig selects the sinks.
type OutputConfig struct {
	Stdout bool
	// Stderr moves the console sink to stderr so stdout stays free for
	// command results.
	Stderr bool
	OTEL   bool
}

// SamplingConfig thins repeated entries per level. Error and above always
// pass, and so does trace, which zap's sampler does not count.
type SamplingConfig struct {
	Enabled bool
	Tick    time.Duration
	Levels  map[zapcore.Level]LevelSampling
}

// LevelSampling keeps the first Initial identical entries per tick, then
// every Thereafter-th. Thereafter 0 drops the rest.
type LevelSampling struct {
	Initial    int
	Thereafter int
}

// CallerConfig adds the calling file and line.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// RedactionConfig masks sensitive values before encoding. Fields are keys
// whose values are always masked; Patterns mask matching spans inside any
// string value or message.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns the settings chatloop runs with.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: FormatJSON,
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    time.Second,
			Levels:  defaultLevelSampling(),
		},
		Caller:          CallerConfig{Enabled: true, Skip: 1},
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "chatloop"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "cookie", "dom_snapshot",
			},
			// Candidate text is scraped from arbitrary pages and can carry credentials.
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
				`\bsk-[A-Za-z0-9_-]{16,}`,
			},
		},
	}
}

// defaultLevelSampling sizes the debug budget for a full loop run: one
// entry per attempt plus the plan and verdict lines.
func defaultLevelSampling() map[zapcore.Level]LevelSampling {
	return map[zapcore.Level]LevelSampling{
		zapcore.DebugLevel: {Initial: 32},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("format must be %q or %q, got %q", FormatJSON, FormatConsole, c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return errors.New("no output enabled: set stdout or otel")
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("sampling tick must be positive, got %s", c.Sampling.Tick)
	}
	for lvl, s := range c.Sampling.Levels {
		if s.Initial < 0 || s.Thereafter < 0 {
			return fmt.Errorf("sampling for %s must not be negative", lvl)
		}
	}
	if c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must not be negative, got %d", c.Caller.Skip)
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q=%q: key and value are required", k, v)
		}
	}
	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
	}
	return nil
}

// FromSettings applies the application's level and format to the defaults.
func FromSettings(level, format string) (*Config, error) {
	cfg := NewDefaultConfig()
	if level != "" {
		lvl, err := ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	if format != "" {
		cfg.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
