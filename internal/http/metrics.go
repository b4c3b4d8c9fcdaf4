package http

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/chatloop/internal/http"

// Run outcomes recorded on chatloop.http.runs.
const (
	outcomeOK            = "ok"
	outcomeVerifyFailed  = "verify_failed"
	outcomeModelGate     = "model_unavailable"
	outcomeInvalid       = "invalid"
	outcomeCanceled      = "canceled"
	outcomeError         = "error"
	unmatchedRouteMarker = "unmatched"
)

// metrics records request and run instruments. Instruments that fail to
// register stay nil and are skipped.
type metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	runs     metric.Int64Counter
	runWait  metric.Float64Histogram
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("registering instrument failed", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &metrics{}
	var err error

	m.requests, err = meter.Int64Counter("chatloop.http.requests",
		metric.WithDescription("HTTP requests by route, method and status class"),
		metric.WithUnit("{request}"))
	warn("chatloop.http.requests", err)

	m.duration, err = meter.Float64Histogram("chatloop.http.request.duration",
		metric.WithDescription("HTTP request latency. Loop runs dominate the upper buckets."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	warn("chatloop.http.request.duration", err)

	m.inFlight, err = meter.Int64UpDownCounter("chatloop.http.requests.in_flight",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	warn("chatloop.http.requests.in_flight", err)

	m.runs, err = meter.Int64Counter("chatloop.http.runs",
		metric.WithDescription("Loop runs by outcome"),
		metric.WithUnit("{run}"))
	warn("chatloop.http.runs", err)

	m.runWait, err = meter.Float64Histogram("chatloop.http.run.wait",
		metric.WithDescription("Time a run request waited for the previous run to finish"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60))
	warn("chatloop.http.run.wait", err)

	return m
}

// observe serves c through next and records it against its route template.
func (m *metrics) observe(c echo.Context, next echo.HandlerFunc) error {
	ctx := c.Request().Context()
	start := time.Now()
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)
	}

	err := next(c)

	attrs := metric.WithAttributes(
		attribute.String("http.route", routeLabel(c.Path())),
		attribute.String("http.method", c.Request().Method),
		attribute.String("http.status_class", statusClass(c.Response().Status)),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return err
}

// recordRun counts one run. host is only passed for requests the loop
// accepted; rejected and aborted runs are counted without it.
func (m *metrics) recordRun(ctx context.Context, outcome string, host string) {
	if m.runs == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if host != "" {
		attrs = append(attrs, attribute.String("domain.host", logging.Clip(host)))
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordWait(ctx context.Context, d time.Duration) {
	if m.runWait != nil {
		m.runWait.Record(ctx, d.Seconds())
	}
}

// routeLabel keeps cardinality bounded: echo reports the registered
// template, and requests that matched nothing share one label.
func routeLabel(path string) string {
	if path == "" || path == "/*" {
		return unmatchedRouteMarker
	}
	return path
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
