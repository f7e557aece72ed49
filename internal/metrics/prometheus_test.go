package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddleware(t *testing.T) {
	InitPrometheus()
	InitPrometheus()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(RequestCount.WithLabelValues(http.MethodGet, "/ping", "204"))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	after := testutil.ToFloat64(RequestCount.WithLabelValues(http.MethodGet, "/ping", "204"))
	assert.Equal(t, before+1, after)

	resp := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "http_requests_total"))
}
