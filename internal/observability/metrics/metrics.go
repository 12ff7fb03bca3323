package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, session lifecycle, chunk throughput, and pipeline events. It
// coordinates concurrent writers via a RWMutex while exposing thread-safe
// gauges for active session and pipeline tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	chunkDropped    map[string]uint64
	pipelineEvents  map[string]uint64
	chunkForwarded  atomic.Uint64
	chunkBytes      atomic.Uint64
	activeSessions  atomic.Int64
	activePipelines atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		chunkDropped:    make(map[string]uint64),
		pipelineEvents:  make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals
// for request count and cumulative duration by HTTP method, normalized
// path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// SessionOpened increments the active session gauge when a new client
// registration is stored.
func (r *Recorder) SessionOpened() {
	r.activeSessions.Add(1)
}

// SessionClosed decrements the active session gauge, guarding against
// negative counts when concurrent teardowns race.
func (r *Recorder) SessionClosed() {
	r.decrementGauge(&r.activeSessions)
}

// ChunkForwarded records one chunk delivered to a pipeline plus its payload
// size.
func (r *Recorder) ChunkForwarded(size int) {
	r.chunkForwarded.Add(1)
	if size > 0 {
		r.chunkBytes.Add(uint64(size))
	}
}

// ChunkDropped records one discarded chunk keyed by drop reason (e.g.
// "no_session", "backpressure", "not_writable").
func (r *Recorder) ChunkDropped(reason string) {
	key := normalizeName(reason)
	r.mu.Lock()
	r.chunkDropped[key]++
	r.mu.Unlock()
}

// PipelineStarted records a pipeline spawn and increments the active
// pipeline gauge.
func (r *Recorder) PipelineStarted() {
	r.incrementPipelineEvent("start")
	r.activePipelines.Add(1)
}

// PipelineExited records a pipeline exit, distinguishing clean completions
// from failures, and decrements the active pipeline gauge.
func (r *Recorder) PipelineExited(clean bool) {
	event := "exit"
	if !clean {
		event = "error"
	}
	r.incrementPipelineEvent(event)
	r.decrementGauge(&r.activePipelines)
}

func (r *Recorder) incrementPipelineEvent(event string) {
	key := normalizeName(event)
	r.mu.Lock()
	r.pipelineEvents[key]++
	r.mu.Unlock()
}

// Reset clears all recorded values. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.chunkDropped = make(map[string]uint64)
	r.pipelineEvents = make(map[string]uint64)
	r.chunkForwarded.Store(0)
	r.chunkBytes.Store(0)
	r.activeSessions.Store(0)
	r.activePipelines.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus
// text exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	dropReasons := sortedKeys(r.chunkDropped)
	pipelineEvents := sortedKeys(r.pipelineEvents)

	fmt.Fprintln(w, "# HELP camrelay_http_requests_total Total number of HTTP requests processed by the control endpoint")
	fmt.Fprintln(w, "# TYPE camrelay_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "camrelay_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP camrelay_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE camrelay_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "camrelay_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP camrelay_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE camrelay_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "camrelay_http_request_duration_seconds_count{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP camrelay_chunks_forwarded_total Chunks delivered to transcoding pipelines")
	fmt.Fprintln(w, "# TYPE camrelay_chunks_forwarded_total counter")
	fmt.Fprintf(w, "camrelay_chunks_forwarded_total %d\n", r.chunkForwarded.Load())

	fmt.Fprintln(w, "# HELP camrelay_chunk_bytes_total Payload bytes delivered to transcoding pipelines")
	fmt.Fprintln(w, "# TYPE camrelay_chunk_bytes_total counter")
	fmt.Fprintf(w, "camrelay_chunk_bytes_total %d\n", r.chunkBytes.Load())

	fmt.Fprintln(w, "# HELP camrelay_chunks_dropped_total Chunks discarded on the ingress path by reason")
	fmt.Fprintln(w, "# TYPE camrelay_chunks_dropped_total counter")
	for _, reason := range dropReasons {
		fmt.Fprintf(w, "camrelay_chunks_dropped_total{reason=%q} %d\n", reason, r.chunkDropped[reason])
	}

	fmt.Fprintln(w, "# HELP camrelay_pipeline_events_total Pipeline lifecycle events by type")
	fmt.Fprintln(w, "# TYPE camrelay_pipeline_events_total counter")
	for _, event := range pipelineEvents {
		fmt.Fprintf(w, "camrelay_pipeline_events_total{event=%q} %d\n", event, r.pipelineEvents[event])
	}

	fmt.Fprintln(w, "# HELP camrelay_active_sessions Current number of registered client sessions")
	fmt.Fprintln(w, "# TYPE camrelay_active_sessions gauge")
	fmt.Fprintf(w, "camrelay_active_sessions %d\n", r.activeSessions.Load())

	fmt.Fprintln(w, "# HELP camrelay_active_pipelines Current number of live transcoding pipelines")
	fmt.Fprintln(w, "# TYPE camrelay_active_pipelines gauge")
	fmt.Fprintf(w, "camrelay_active_pipelines %d\n", r.activePipelines.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 8 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// Handler exposes the default recorder.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
