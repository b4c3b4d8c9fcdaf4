package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxConfigFileSize bounds what LoadWithFile will read.
const maxConfigFileSize = 1 << 20

// LoadWithFile builds the configuration from, lowest precedence first,
// Default(), the YAML file at configPath and the environment. An empty
// configPath means DefaultPath(); a missing file is not an error.
//
// The file must live under ~/.config/chatloop/ or /etc/chatloop/, be mode
// 0600 or 0400 and be at most 1MB.
//
// Environment keys split on the first underscore:
//
//	SERVER_HTTP_PORT      -> server.http_port
//	AGENT_MAX_ATTEMPTS    -> agent.max_attempts
//	TELEMETRY_API_KEY     -> telemetry.api_key
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	k := koanf.New(".")

	content, err := readConfigFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	restoreZeroDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultPath is ~/.config/chatloop/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "chatloop", "config.yaml"), nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	section, field, ok := strings.Cut(strings.ToLower(s), "_")
	if !ok {
		return section
	}
	return section + "." + field
}

// readConfigFile checks mode and size on the open descriptor, so the file
// that was checked is the file that is read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := checkFileInfo(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func checkFileInfo(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// validateConfigPath accepts only paths that resolve, symlinks followed,
// inside one of the config directories. The file need not exist yet.
func validateConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	for _, dir := range []string{filepath.Join(home, ".config", "chatloop"), "/etc/chatloop"} {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return errors.New("config file must be in ~/.config/chatloop/ or /etc/chatloop/")
}

// restoreZeroDefaults puts back defaults for keys set explicitly to a zero
// value, e.g. an empty SERVER_HOST.
func restoreZeroDefaults(cfg *Config) {
	def := Default()

	orDefault(&cfg.Server.Host, def.Server.Host)
	orDefault(&cfg.Server.Port, def.Server.Port)
	orDefault(&cfg.Server.ShutdownTimeout, def.Server.ShutdownTimeout)
	orDefault(&cfg.Server.BodyLimit, def.Server.BodyLimit)

	orDefault(&cfg.Embeddings.Model, def.Embeddings.Model)
	orDefault(&cfg.Embeddings.CacheDir, def.Embeddings.CacheDir)
	orDefault(&cfg.Embeddings.MaxChars, def.Embeddings.MaxChars)
	orDefault(&cfg.Embeddings.CacheSize, def.Embeddings.CacheSize)

	orDefault(&cfg.Agent.MaxAttempts, def.Agent.MaxAttempts)
	orDefault(&cfg.Agent.MaxTrainExamples, def.Agent.MaxTrainExamples)
	orDefault(&cfg.Agent.SnapshotLimit, def.Agent.SnapshotLimit)

	orDefault(&cfg.Storage.Path, def.Storage.Path)
	orDefault(&cfg.Storage.BusyTimeoutMS, def.Storage.BusyTimeoutMS)
	orDefault(&cfg.Storage.FailureIndexPath, def.Storage.FailureIndexPath)

	orDefault(&cfg.Logging.Level, def.Logging.Level)
	orDefault(&cfg.Logging.Format, def.Logging.Format)

	orDefault(&cfg.Telemetry.Endpoint, def.Telemetry.Endpoint)
	orDefault(&cfg.Telemetry.Protocol, def.Telemetry.Protocol)
}

func orDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}
