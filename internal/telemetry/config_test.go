package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatloop/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, protocolGRPC, cfg.Protocol)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "chatloop", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricsInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.APIKey.IsSet())

	cfg.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"remote over tls", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"http protocol", func(c *Config) { c.Protocol = protocolHTTP; c.Endpoint = "http://127.0.0.1:4318" }, ""},
		{"metrics off", func(c *Config) { c.MetricsInterval = 0 }, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service name is required"},
		{"missing version", func(c *Config) { c.ServiceVersion = "" }, "service version is required"},
		{"unknown protocol", func(c *Config) { c.Protocol = "thrift" }, `got "thrift"`},
		{"empty protocol", func(c *Config) { c.Protocol = "" }, "protocol must be"},
		{"plaintext to remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure export to otel.example.com:4317 refused"},
		{"negative rate", func(c *Config) { c.SampleRate = -0.1 }, "sample rate"},
		{"rate above one", func(c *Config) { c.SampleRate = 1.5 }, "sample rate"},
		{"negative interval", func(c *Config) { c.MetricsInterval = -time.Second }, "metrics interval"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"LOCALHOST", true},
		{"127.0.0.1:4317", true},
		{"127.0.1.1", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"http://localhost:4318", true},
		{"https://127.0.0.1:4318", true},
		{"otel.example.com:4317", false},
		{"localhost.example.com:4317", false},
		{"10.0.0.1:4317", false},
		{"192.168.1.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, isLoopback(tt.endpoint))
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:       true,
		Endpoint:      "otel.internal:4318",
		Protocol:      protocolHTTP,
		TLSSkipVerify: true,
		APIKey:        config.Secret("k-123"),
		Rate:          0.25,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel.internal:4318", cfg.Endpoint)
	assert.Equal(t, protocolHTTP, cfg.Protocol)
	assert.False(t, cfg.Insecure)
	assert.True(t, cfg.TLSSkipVerify)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, map[string]string{"authorization": "Bearer k-123"}, cfg.headers())
	assert.Nil(t, NewDefaultConfig().headers())
}

func TestFromSettings_KeepsDefaults(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{}, "")

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, protocolGRPC, cfg.Protocol)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Zero(t, cfg.SampleRate)
}
