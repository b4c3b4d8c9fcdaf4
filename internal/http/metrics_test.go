package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/agent"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
	"github.com/fyrsmithlabs/chatloop/internal/memory"
	"github.com/fyrsmithlabs/chatloop/internal/telemetry"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// instrumentedServer swaps the server's instruments for in-memory ones.
func instrumentedServer(t *testing.T, runner Runner) (*Server, *telemetry.TestTelemetry) {
	t.Helper()
	tt := telemetry.NewTestTelemetry()
	server := setupTestServer(t, runner)
	server.metrics = newMetrics(tt.MeterProvider().Meter(instrumentationName), zap.NewNop())
	return server, tt
}

func TestMetrics_Requests(t *testing.T) {
	server, tt := instrumentedServer(t, nil)

	for _, path := range []string{"/health", "/health", "/api/v1/engine"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	postRun(t, server, `{"host":"chat.example.com","domainFingerprint":"fp"}`)

	route := func(r string) attribute.KeyValue { return attribute.String("http.route", r) }
	assert.Equal(t, int64(4), tt.Int64Sum(t, "chatloop.http.requests"))
	assert.Equal(t, int64(2), tt.Int64Sum(t, "chatloop.http.requests", route("/health")))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.http.requests", route("/api/v1/agent/run"),
		attribute.String("http.method", http.MethodPost), attribute.String("http.status_class", "2xx")))

	rm, err := tt.Collect(t.Context())
	require.NoError(t, err)
	var recorded uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "chatloop.http.request.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			for _, dp := range hist.DataPoints {
				recorded += dp.Count
			}
		}
	}
	assert.Equal(t, uint64(4), recorded)
}

func TestMetrics_RunOutcomes(t *testing.T) {
	runner := &stubRunner{}
	server, tt := instrumentedServer(t, runner)
	body := `{"host":"chat.example.com","domainFingerprint":"fp"}`
	outcome := func(o string) attribute.KeyValue { return attribute.String("outcome", o) }

	postRun(t, server, body)

	runner.resp = &agent.Response{OK: false, Mode: agent.ModeModelUnavailable}
	postRun(t, server, body)

	runner.resp = nil
	runner.err = agent.ErrInvalidRequest
	postRun(t, server, body)

	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.http.runs", outcome(outcomeOK),
		attribute.String("domain.host", "chat.example.com")))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.http.runs", outcome(outcomeModelGate)))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.http.runs", outcome(outcomeInvalid)))
	assert.Equal(t, int64(3), tt.Int64Sum(t, "chatloop.http.runs"))
}

func TestMetrics_FailVerdictCountsAsVerifyFailed(t *testing.T) {
	engine, err := embeddings.NewEngine(embeddings.EngineConfig{CacheDir: t.TempDir()})
	require.NoError(t, err)
	loop, err := agent.New(agent.DefaultConfig(), engine, memory.New(memory.NewInMemoryStore(), nil))
	require.NoError(t, err)
	server, tt := instrumentedServer(t, loop)

	rec := postRun(t, server, `{"host":"chat.example.com","domainFingerprint":"fp","candidatesFeatures":[],"requireModel":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.Equal(t, verifier.StatusFail, resp.BestExtraction.Metrics.Status)

	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.http.runs",
		attribute.String("outcome", outcomeVerifyFailed), attribute.String("domain.host", "chat.example.com")))
	assert.Zero(t, tt.Int64Sum(t, "chatloop.http.runs", attribute.String("outcome", outcomeOK)))
}

func TestMetrics_RejectedRunsCarryNoHost(t *testing.T) {
	engine, err := embeddings.NewEngine(embeddings.EngineConfig{CacheDir: t.TempDir()})
	require.NoError(t, err)
	loop, err := agent.New(agent.DefaultConfig(), engine, memory.New(memory.NewInMemoryStore(), nil))
	require.NoError(t, err)
	server, tt := instrumentedServer(t, loop)

	host := strings.Repeat("x", 5000)
	rec := postRun(t, server, `{"host":"`+host+`","domainFingerprint":"fp"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rm, err := tt.Collect(t.Context())
	require.NoError(t, err)
	var points int
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "chatloop.http.runs" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				points++
				_, hasHost := dp.Attributes.Value("domain.host")
				assert.False(t, hasHost)
				assert.Equal(t, int64(1), dp.Value)
			}
		}
	}
	assert.Equal(t, 1, points)
}

func TestRecordRun_ClipsHost(t *testing.T) {
	server, tt := instrumentedServer(t, nil)
	server.metrics.recordRun(t.Context(), outcomeOK, strings.Repeat("é", 300))

	want := attribute.String("domain.host", strings.Repeat("é", 128))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "chatloop.http.runs", want))
}

func TestMetrics_RunWaitRecorded(t *testing.T) {
	server, tt := instrumentedServer(t, &stubRunner{delay: 10 * time.Millisecond})
	postRun(t, server, `{"host":"a.com","domainFingerprint":"fp"}`)

	rm, err := tt.Collect(t.Context())
	require.NoError(t, err)
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "chatloop.http.run.wait" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", unmatchedRouteMarker},
		{"/*", unmatchedRouteMarker},
		{"/health", "/health"},
		{"/api/v1/agent/run", "/api/v1/agent/run"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.path), tt.path)
	}
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusOK))
	assert.Equal(t, "4xx", statusClass(http.StatusRequestEntityTooLarge))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestRunOutcome(t *testing.T) {
	failed := &agent.Extraction{Metrics: verifier.Verify(nil)}
	passed := &agent.Extraction{Metrics: verifier.Metrics{Score: 0.9, Status: verifier.StatusPass}}

	assert.Equal(t, outcomeError, runOutcome(nil))
	assert.Equal(t, outcomeOK, runOutcome(&agent.Response{OK: true, Mode: agent.ModeLoop, BestExtraction: passed}))
	assert.Equal(t, outcomeVerifyFailed, runOutcome(&agent.Response{OK: true, Mode: agent.ModeLoop, BestExtraction: failed}))
	assert.Equal(t, outcomeModelGate, runOutcome(&agent.Response{Mode: agent.ModeModelUnavailable}))
	assert.Equal(t, outcomeOK, runOutcome(&agent.Response{OK: true, Mode: agent.ModeLoop}))
}
