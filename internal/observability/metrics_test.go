package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jm.Track("labels:render").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "odyssey_pos_jobs_total") {
		t.Fatalf("expected body to contain odyssey_pos_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "odyssey_pos_http_requests_total{code=\"418\",method=\"GET\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "odyssey_pos_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestDomainObservers(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecode("decoded", "EAN_13")
	metrics.ObserveDecode("not_found", "")
	metrics.ObserveImport("skipped")
	metrics.ObserveRefresh("reused")

	body := scrape(t, metrics)
	for _, want := range []string{
		`odyssey_pos_barcode_decodes_total{format="EAN_13",outcome="decoded"} 1`,
		`odyssey_pos_barcode_decodes_total{format="none",outcome="not_found"} 1`,
		`odyssey_pos_product_import_items_total{outcome="skipped"} 1`,
		`odyssey_pos_token_refresh_total{outcome="reused"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveDecode("decoded", "QR_CODE")
	nilMetrics.ObserveImport("failed")
}
