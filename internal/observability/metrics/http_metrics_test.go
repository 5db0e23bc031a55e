package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newHTTPMetrics(prometheus.NewRegistry(), Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/invoices/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/invoices/:id", "404"))
	assert.Equal(t, float64(1), got)
}
