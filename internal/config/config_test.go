package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"zero shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"empty model", func(c *Config) { c.Embeddings.Model = "" }, "embeddings.model"},
		{"zero max chars", func(c *Config) { c.Embeddings.MaxChars = 0 }, "max_chars"},
		{"zero cache size", func(c *Config) { c.Embeddings.CacheSize = 0 }, "cache_size"},
		{"zero attempts", func(c *Config) { c.Agent.MaxAttempts = 0 }, "max_attempts"},
		{"negative early exit", func(c *Config) { c.Agent.EarlyExitScore = -0.1 }, "early_exit_score"},
		{"zero train examples", func(c *Config) { c.Agent.MaxTrainExamples = 0 }, "max_train_examples"},
		{"index traversal", func(c *Config) { c.Storage.FailureIndexPath = "/data/../../etc" }, "failure_index_path"},
		{"cache dir traversal", func(c *Config) { c.Embeddings.CacheDir = `..\models` }, "cache_dir"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"sampling above one", func(c *Config) { c.Telemetry.Rate = 2 }, "sampling_rate"},
		{"trace level", func(c *Config) { c.Logging.Level = "trace" }, ""},
		{"memory path", func(c *Config) { c.Storage.Path = ":memory:" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 1m30s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("5")); err != nil || d.Duration() != 5*time.Second {
		t.Errorf("bare seconds: got %v, %v; want 5s", d.Duration(), err)
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("negative duration should be rejected")
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("malformed duration should be rejected")
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("hunter2")

	if got := fmt.Sprintf("%v %s %#v %q %+v", s, s, s, s, struct{ K Secret }{s}); strings.Contains(got, "hunter2") {
		t.Errorf("formatted secret leaked: %q", got)
	}
	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Errorf("json secret leaked: %s", data)
	}
	if s.Value() != "hunter2" || !s.IsSet() {
		t.Error("Value() should return the raw secret")
	}
	if Secret("").String() != "" {
		t.Error("empty secret should format as empty")
	}
}

func TestDefault_ScrubEnabled(t *testing.T) {
	cfg := Default()
	if !cfg.Scrub.Enabled {
		t.Error("scrub should be enabled by default")
	}
	if cfg.Scrub.Redaction != "[REDACTED]" {
		t.Errorf("Scrub.Redaction = %q, want [REDACTED]", cfg.Scrub.Redaction)
	}
}
