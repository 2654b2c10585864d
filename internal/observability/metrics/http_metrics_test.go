package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m, err := newHTTPMetrics(registry, Config{ServiceName: "accounts", Environment: "test"})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/pp-api/plans/:id/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/pp-api/plans/1/", "/pp-api/plans/2/", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/pp-api/plans/:id/", http.MethodGet, "200"))
	if got != 2 {
		t.Fatalf("expected 2 routed requests, got %v", got)
	}
	got = testutil.ToFloat64(m.requests.WithLabelValues("unmatched", http.MethodGet, "404"))
	if got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestHTTPMetricsRejectsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := newHTTPMetrics(registry, Config{}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := newHTTPMetrics(registry, Config{}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
