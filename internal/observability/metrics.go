package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk HTTP dan siklus dokumen.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	documentsCreated   *prometheus.CounterVec
	documentsConverted *prometheus.CounterVec
	numbersAllocated   *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_documents_created_total",
		Help: "Documents created directly, by type.",
	}, []string{"type"})
	converted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_documents_converted_total",
		Help: "Document conversions by source and target type.",
	}, []string{"from", "to"})
	allocated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_document_numbers_allocated_total",
		Help: "Fresh document numbers drawn from the sequence counters, by type.",
	}, []string{"type"})
	registry.MustRegister(requests, duration, created, converted, allocated)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		documentsCreated:   created,
		documentsConverted: converted,
		numbersAllocated:   allocated,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// DocumentCreated counts a document created outside a conversion.
func (m *Metrics) DocumentCreated(docType string) {
	if m == nil {
		return
	}
	m.documentsCreated.WithLabelValues(docType).Inc()
}

// DocumentConverted counts a successful conversion.
func (m *Metrics) DocumentConverted(from, to string) {
	if m == nil {
		return
	}
	m.documentsConverted.WithLabelValues(from, to).Inc()
}

// NumberAllocated counts a number drawn from a sequence counter.
func (m *Metrics) NumberAllocated(docType string) {
	if m == nil {
		return
	}
	m.numbersAllocated.WithLabelValues(docType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
