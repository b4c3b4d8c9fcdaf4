package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/chatloop/internal/config"
)

// Config describes where and how chatloop exports traces and metrics.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string // grpc or http/protobuf
	Insecure       bool   // plaintext; loopback collectors only
	TLSSkipVerify  bool
	APIKey         config.Secret
	ServiceName    string
	ServiceVersion string

	// SampleRate is the head sampling ratio for root spans.
	SampleRate float64
	// MetricsInterval is the export period; zero turns metric export off.
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a disabled config pointed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        protocolGRPC,
		Insecure:        true,
		ServiceName:     "chatloop",
		ServiceVersion:  "dev",
		SampleRate:      1,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromSettings maps the telemetry section of the application config.
func FromSettings(s config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = s.Enabled
	if s.Endpoint != "" {
		cfg.Endpoint = s.Endpoint
	}
	if s.Protocol != "" {
		cfg.Protocol = s.Protocol
	}
	cfg.Insecure = s.Insecure
	cfg.TLSSkipVerify = s.TLSSkipVerify
	cfg.APIKey = s.APIKey
	cfg.SampleRate = s.Rate
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// Validate reports the first problem with an enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required")
	case c.ServiceName == "":
		return errors.New("service name is required")
	case c.ServiceVersion == "":
		return errors.New("service version is required")
	}
	if _, ok := exporters[c.Protocol]; !ok {
		return fmt.Errorf("protocol must be %s or %s, got %q", protocolGRPC, protocolHTTP, c.Protocol)
	}
	if c.Insecure && !isLoopback(c.Endpoint) {
		return fmt.Errorf("insecure export to %s refused: plaintext is only allowed to a loopback collector", c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %g", c.SampleRate)
	}
	if c.MetricsInterval < 0 {
		return fmt.Errorf("metrics interval must not be negative, got %s", c.MetricsInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

// headers carries the api key as a bearer token, or nil without one.
func (c *Config) headers() map[string]string {
	if !c.APIKey.IsSet() {
		return nil
	}
	return map[string]string{"authorization": "Bearer " + c.APIKey.Value()}
}

// isLoopback reports whether endpoint names this machine. The endpoint may
// carry a scheme and may omit the port.
func isLoopback(endpoint string) bool {
	host := hostPort(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
