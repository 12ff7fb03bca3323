package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAggregatesByLabel(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/healthz", http.StatusOK, 10*time.Millisecond)
	recorder.ObserveRequest("GET", "/healthz", http.StatusOK, 20*time.Millisecond)

	var out strings.Builder
	recorder.Write(&out)

	if !strings.Contains(out.String(), `camrelay_http_requests_total{method="GET",path="/healthz",status="200"} 2`) {
		t.Fatalf("expected aggregated request counter, got:\n%s", out.String())
	}
}

func TestNormalizePathCollapsesIdentifiers(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/api/streams", "/api/streams"},
		{"/api/streams/client42", "/api/streams/:id"},
		{"/api/ingest/6d0f2b9c41aa77e3", "/api/ingest/:id"},
	}
	for _, tc := range testCases {
		if got := normalizePath(tc.input); got != tc.expected {
			t.Fatalf("normalizePath(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestChunkCounters(t *testing.T) {
	recorder := New()
	recorder.ChunkForwarded(512)
	recorder.ChunkForwarded(256)
	recorder.ChunkDropped("no_session")
	recorder.ChunkDropped("backpressure")
	recorder.ChunkDropped("backpressure")

	var out strings.Builder
	recorder.Write(&out)
	rendered := out.String()

	if !strings.Contains(rendered, "camrelay_chunks_forwarded_total 2") {
		t.Fatalf("expected forwarded counter, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "camrelay_chunk_bytes_total 768") {
		t.Fatalf("expected byte counter, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, `camrelay_chunks_dropped_total{reason="backpressure"} 2`) {
		t.Fatalf("expected backpressure drops, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, `camrelay_chunks_dropped_total{reason="no_session"} 1`) {
		t.Fatalf("expected no_session drop, got:\n%s", rendered)
	}
}

func TestPipelineGaugeNeverGoesNegative(t *testing.T) {
	recorder := New()
	recorder.PipelineExited(true)
	recorder.PipelineStarted()
	recorder.PipelineExited(false)
	recorder.PipelineExited(false)

	var out strings.Builder
	recorder.Write(&out)
	rendered := out.String()

	if !strings.Contains(rendered, "camrelay_active_pipelines 0") {
		t.Fatalf("expected gauge clamped at zero, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, `camrelay_pipeline_events_total{event="error"} 2`) {
		t.Fatalf("expected error events, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, `camrelay_pipeline_events_total{event="start"} 1`) {
		t.Fatalf("expected start event, got:\n%s", rendered)
	}
}

func TestSessionGauge(t *testing.T) {
	recorder := New()
	recorder.SessionOpened()
	recorder.SessionOpened()
	recorder.SessionClosed()

	var out strings.Builder
	recorder.Write(&out)
	if !strings.Contains(out.String(), "camrelay_active_sessions 1") {
		t.Fatalf("expected one active session, got:\n%s", out.String())
	}
}

func TestHandlerServesPrometheusText(t *testing.T) {
	recorder := New()
	recorder.ChunkForwarded(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "# TYPE camrelay_chunks_forwarded_total counter") {
		t.Fatalf("expected exposition output, got:\n%s", rr.Body.String())
	}
}

func TestResetClearsState(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/healthz", http.StatusOK, time.Millisecond)
	recorder.SessionOpened()
	recorder.ChunkForwarded(42)
	recorder.Reset()

	var out strings.Builder
	recorder.Write(&out)
	rendered := out.String()

	if strings.Contains(rendered, "camrelay_http_requests_total{") {
		t.Fatalf("expected request counters cleared, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "camrelay_active_sessions 0") {
		t.Fatalf("expected session gauge reset, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "camrelay_chunks_forwarded_total 0") {
		t.Fatalf("expected chunk counter reset, got:\n%s", rendered)
	}
}
