package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_NilSafe(t *testing.T) {
	var m *Collector
	m.OrderEvent("created")
	m.RecordTransition("received")
	m.Interpretation("LOW")
	m.SequenceCode("order", "ok")
	m.Containers(3)
	m.Payment("percentage")
	m.PublishFailed()
}

func TestCollector_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.OrderEvent("created")
	m.OrderEvent("created")
	m.Interpretation("")
	m.Containers(3)

	if got := testutil.ToFloat64(m.OrdersTotal.WithLabelValues("created")); got != 2 {
		t.Errorf("expected 2 created orders, got %v", got)
	}
	if got := testutil.ToFloat64(m.Interpretations.WithLabelValues("none")); got != 1 {
		t.Errorf("expected empty flag recorded as none, got %v", got)
	}
	if got := testutil.ToFloat64(m.ContainersPlanned); got != 3 {
		t.Errorf("expected 3 containers, got %v", got)
	}
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/orders/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	})
	e.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/orders/:id", "404")); got != 1 {
		t.Errorf("expected one 404 request, got %v", got)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "labflow_http_requests_total") {
		t.Error("expected exposition to include labflow_http_requests_total")
	}
}
