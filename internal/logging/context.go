package logging

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Correlation is what a run carries into every log entry it produces.
type Correlation struct {
	RunID       string
	RequestID   string
	Host        string
	Fingerprint string
}

type correlationKey struct{}

const (
	maxIDLen    = 128
	maxLabelLen = 256
)

// CorrelationFrom returns the correlation stored in ctx, zero if none.
func CorrelationFrom(ctx context.Context) Correlation {
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

func withCorrelation(ctx context.Context, update func(*Correlation)) context.Context {
	c := CorrelationFrom(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// WithRunID tags ctx with the loop run. It panics on an id ValidID rejects;
// run ids are generated, never read from input.
func WithRunID(ctx context.Context, id string) context.Context {
	mustID("run id", id)
	return withCorrelation(ctx, func(c *Correlation) { c.RunID = id })
}

// WithRequestID tags ctx with the HTTP request id. Callers check ValidID
// first when the id came from a client.
func WithRequestID(ctx context.Context, id string) context.Context {
	mustID("request id", id)
	return withCorrelation(ctx, func(c *Correlation) { c.RequestID = id })
}

// WithDomain tags ctx with the chat application being extracted from. Both
// values arrive in request payloads and are clipped, not rejected.
func WithDomain(ctx context.Context, host, fingerprint string) context.Context {
	return withCorrelation(ctx, func(c *Correlation) {
		c.Host = Clip(host)
		c.Fingerprint = Clip(fingerprint)
	})
}

// ContextFields renders the trace and correlation values in ctx as zap fields.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	c := CorrelationFrom(ctx)
	if c.Host != "" || c.Fingerprint != "" {
		fields = append(fields,
			zap.String("domain.host", c.Host),
			zap.String("domain.fingerprint", c.Fingerprint),
		)
	}
	if c.RunID != "" {
		fields = append(fields, zap.String("run.id", c.RunID))
	}
	if c.RequestID != "" {
		fields = append(fields, zap.String("request.id", c.RequestID))
	}
	return fields
}

// ValidID reports whether id is 1 to 128 characters of [A-Za-z0-9_-].
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch ch := id[i]; {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return false
		}
	}
	return true
}

func mustID(what, id string) {
	if !ValidID(id) {
		panic(fmt.Sprintf("logging: invalid %s %q", what, id))
	}
}

// Clip bounds a caller-supplied label to 256 bytes without splitting a
// rune. Invalid UTF-8 is quoted first.
func Clip(s string) string {
	if !utf8.ValidString(s) {
		s = strconv.Quote(s)
	}
	if len(s) <= maxLabelLen {
		return s
	}
	cut := maxLabelLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
