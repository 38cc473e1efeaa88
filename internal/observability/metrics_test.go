package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesDocumentCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.DocumentCreated("quote")
	metrics.DocumentConverted("quote", "proforma")
	metrics.NumberAllocated("quote")
	metrics.NumberAllocated("quote")

	body := scrape(t, metrics)
	for _, want := range []string{
		`billing_documents_created_total{type="quote"} 1`,
		`billing_documents_converted_total{from="quote",to="proforma"} 1`,
		`billing_document_numbers_allocated_total{type="quote"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %s, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.DocumentCreated("invoice")
	metrics.DocumentConverted("invoice", "credit_note")
	metrics.NumberAllocated("invoice")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/documents/{id}")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/abc", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, `billing_http_requests_total{code="418",route="/api/documents/{id}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, `billing_http_request_duration_seconds_bucket{route="/api/documents/{id}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestRegistererExposesCustomCollectors(t *testing.T) {
	metrics := NewMetrics()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_worker_probe_total", Help: "probe"})
	metrics.Registerer().MustRegister(counter)
	counter.Inc()

	if body := scrape(t, metrics); !strings.Contains(body, "billing_worker_probe_total 1") {
		t.Fatalf("expected custom collector in output, got: %s", body)
	}
}
