// Package config provides configuration loading for chatloop.
//
// Configuration is read from a YAML file, overridden by environment
// variables, then defaulted and validated.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds the complete chatloop configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Agent      AgentConfig      `koanf:"agent"`
	Storage    StorageConfig    `koanf:"storage"`
	Scrub      ScrubConfig      `koanf:"scrub"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"`
}

// EmbeddingsConfig configures the embedding engine.
type EmbeddingsConfig struct {
	Model        string `koanf:"model"`
	CacheDir     string `koanf:"cache_dir"`
	MaxChars     int    `koanf:"max_chars"`
	CacheSize    int    `koanf:"cache_size"`
	ShowProgress bool   `koanf:"show_progress"`
}

// AgentConfig configures the extraction loop.
type AgentConfig struct {
	MaxAttempts      int     `koanf:"max_attempts"`
	EarlyExitScore   float64 `koanf:"early_exit_score"`
	MaxTrainExamples int     `koanf:"max_train_examples"`
	RequireModel     bool    `koanf:"require_model"`
	SnapshotLimit    int     `koanf:"snapshot_limit"`
}

// StorageConfig configures per-domain memory.
type StorageConfig struct {
	Path                 string `koanf:"path"`
	BusyTimeoutMS        int    `koanf:"busy_timeout_ms"`
	FailureIndexPath     string `koanf:"failure_index_path"`
	FailureIndexCompress bool   `koanf:"failure_index_compress"`
}

// ScrubConfig controls secret redaction in stored failure samples.
type ScrubConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`
	Insecure bool   `koanf:"insecure"`

	// TLSSkipVerify accepts collector certificates from a private CA.
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	APIKey        Secret  `koanf:"api_key"`
	Rate          float64 `koanf:"sampling_rate"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "8M",
		},
		Embeddings: EmbeddingsConfig{
			Model:     "BAAI/bge-small-en-v1.5",
			CacheDir:  "./local_cache",
			MaxChars:  1000,
			CacheSize: 128,
		},
		Agent: AgentConfig{
			MaxAttempts:      8,
			EarlyExitScore:   0.82,
			MaxTrainExamples: 200,
			RequireModel:     true,
			SnapshotLimit:    40000,
		},
		Storage: StorageConfig{
			Path:                 "~/.config/chatloop/memory.db",
			BusyTimeoutMS:        10000,
			FailureIndexPath:     "~/.config/chatloop/failures",
			FailureIndexCompress: true,
		},
		Scrub: ScrubConfig{
			Enabled:   true,
			Redaction: "[REDACTED]",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
			Insecure: true,
			Rate:     1.0,
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Agent or embedding limits are out of range
//   - A storage path contains a parent directory reference
//   - Logging or telemetry settings are unknown
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Embeddings.Model == "" {
		return errors.New("embeddings.model is required")
	}
	if c.Embeddings.MaxChars <= 0 {
		return fmt.Errorf("embeddings.max_chars must be positive, got %d", c.Embeddings.MaxChars)
	}
	if c.Embeddings.CacheSize <= 0 {
		return fmt.Errorf("embeddings.cache_size must be positive, got %d", c.Embeddings.CacheSize)
	}

	if c.Agent.MaxAttempts < 1 || c.Agent.MaxAttempts > 64 {
		return fmt.Errorf("agent.max_attempts must be 1-64, got %d", c.Agent.MaxAttempts)
	}
	if c.Agent.EarlyExitScore < 0 || c.Agent.EarlyExitScore > 1 {
		return fmt.Errorf("agent.early_exit_score must be between 0 and 1, got %f", c.Agent.EarlyExitScore)
	}
	if c.Agent.MaxTrainExamples <= 0 {
		return fmt.Errorf("agent.max_train_examples must be positive, got %d", c.Agent.MaxTrainExamples)
	}

	for name, path := range map[string]string{
		"storage.path":               c.Storage.Path,
		"storage.failure_index_path": c.Storage.FailureIndexPath,
		"embeddings.cache_dir":       c.Embeddings.CacheDir,
	} {
		if hasParentRef(path) {
			return fmt.Errorf("%s must not contain '..': %q", name, path)
		}
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil && c.Logging.Level != "trace" {
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.Rate < 0 || c.Telemetry.Rate > 1 {
		return fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.Rate)
	}

	return nil
}

func hasParentRef(path string) bool {
	for _, part := range strings.Split(strings.ReplaceAll(path, "\\", "/"), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
