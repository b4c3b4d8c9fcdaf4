package config

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// Duration decodes YAML and env values such as "10s". A bare integer is
// read as seconds, so SERVER_SHUTDOWN_TIMEOUT=5 works.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		secs, convErr := strconv.Atoi(s)
		if convErr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret is a credential read from config, such as telemetry.api_key.
// Formatting and marshaling yield a mask; only Value returns the credential.
type Secret string

const secretMask = "[REDACTED]"

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return secretMask
}

// Value returns the credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool { return s != "" }

// String implements fmt.Stringer.
func (s Secret) String() string { return s.masked() }

// Format masks every verb, %#v and %q included.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, s.masked())
}

// MarshalText implements encoding.TextMarshaler; encoding/json and the yaml
// encoder both go through it.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.masked()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
