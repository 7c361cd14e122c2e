// Package metrics exposes Prometheus collectors for queries, retrieval, model calls, ingestion
// and HTTP traffic. Collectors live on a private registry owned by the Metrics value.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bunbetsu"

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal       *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	queryCandidates    prometheus.Histogram
	retrievalTotal     *prometheus.CounterVec
	retrievalDuration  *prometheus.HistogramVec
	rungsTotal         *prometheus.CounterVec
	answersTotal       *prometheus.CounterVec
	llmCallsTotal      *prometheus.CounterVec
	llmCallDuration    *prometheus.HistogramVec
	ingestDocuments    *prometheus.CounterVec
	ingestFailures     *prometheus.CounterVec
	documents          prometheus.Gauge
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queries_total",
			Help: "Questions answered, by mode (blocking or streaming).",
		}, []string{"mode"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "query_duration_seconds",
			Help:    "Time from question to reply (first fragment handed off for streaming).",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		queryCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "query_candidates",
			Help:    "Reranked candidates per question.",
			Buckets: []float64{0, 1, 2, 5, 8, 12, 20},
		}),
		retrievalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "requests_total",
			Help: "Retrieval calls by mode and status.",
		}, []string{"mode", "status"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "duration_seconds",
			Help:    "Retrieval call duration.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"mode"}),
		rungsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "ladder_rung_total",
			Help: "Retry ladder rung that produced the returned result.",
		}, []string{"rung"}),
		answersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "answers_total",
			Help: "Replies by synthesis path.",
		}, []string{"path"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "calls_total",
			Help: "Language-model calls by model, operation and status.",
		}, []string{"model", "operation", "status"}),
		llmCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
			Help:    "Language-model call duration (stream open time for streamed calls).",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model", "operation"}),
		ingestDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "documents_total",
			Help: "Documents ingested by file type.",
		}, []string{"type"}),
		ingestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "failures_total",
			Help: "Files that failed to ingest by file type.",
		}, []string{"type"}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "documents",
			Help: "Documents currently indexed.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queriesTotal, m.queryDuration, m.queryCandidates,
		m.retrievalTotal, m.retrievalDuration, m.rungsTotal,
		m.answersTotal, m.llmCallsTotal, m.llmCallDuration,
		m.ingestDocuments, m.ingestFailures, m.documents,
		m.httpRequestsTotal, m.httpRequestLatency,
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRetrieval records one retrieval call.
func (m *Metrics) ObserveRetrieval(mode string, d time.Duration, err error) {
	m.retrievalTotal.WithLabelValues(mode, status(err)).Inc()
	m.retrievalDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveRung records the ladder rung whose result was returned.
func (m *Metrics) ObserveRung(rung string) {
	m.rungsTotal.WithLabelValues(rung).Inc()
}

// ObserveLLMCall records one language-model call.
func (m *Metrics) ObserveLLMCall(model, operation string, d time.Duration, err error) {
	m.llmCallsTotal.WithLabelValues(model, operation, status(err)).Inc()
	m.llmCallDuration.WithLabelValues(model, operation).Observe(d.Seconds())
}

// ObserveAnswer records the synthesis path of a reply.
func (m *Metrics) ObserveAnswer(path string) {
	m.answersTotal.WithLabelValues(path).Inc()
}

// ObserveQuery records an answered question.
func (m *Metrics) ObserveQuery(mode string, d time.Duration, candidates int) {
	m.queriesTotal.WithLabelValues(mode).Inc()
	m.queryDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.queryCandidates.Observe(float64(candidates))
}

// ObserveIngest records the outcome of ingesting one file of the given type.
func (m *Metrics) ObserveIngest(fileType string, documents int, err error) {
	if err != nil {
		m.ingestFailures.WithLabelValues(fileType).Inc()
		return
	}
	m.ingestDocuments.WithLabelValues(fileType).Add(float64(documents))
}

// SetDocuments sets the indexed document gauge.
func (m *Metrics) SetDocuments(n int) {
	m.documents.Set(float64(n))
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.httpRequestLatency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush lets SSE handlers flush through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
