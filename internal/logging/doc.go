// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with a Trace level below Debug, stdout and OTEL outputs,
// encoder-level redaction and per-level sampling (errors are never sampled).
//
// Create a logger from the application settings:
//
//	cfg, err := logging.FromSettings("info", "json")
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, otelProvider)
//
// Log with context:
//
//	ctx = logging.WithDomain(ctx, req.Host, req.DomainFingerprint)
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "plan scored", zap.Float64("score", m.Score))
//
// Every entry carries the correlation fields found in ctx:
//
//	{
//	  "level": "info",
//	  "msg": "plan scored",
//	  "trace_id": "abc123",
//	  "domain.host": "chat.example.com",
//	  "domain.fingerprint": "layout-v3",
//	  "run.id": "1f0c...",
//	  "score": 0.85
//	}
//
// Candidate text comes from arbitrary pages, so the default redaction
// patterns also match API-key shaped tokens. Only the matching span is
// masked; the rest of the value stays readable. Keys such as authorization
// and dom_snapshot are always replaced wholesale.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
