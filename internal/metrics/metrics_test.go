package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/v1/rooms/:rid", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/rooms/:rid", "200"))
	for _, rid := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+rid, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/rooms/:rid", "200"))
	assert.Equal(t, float64(3), after-before)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.GreaterOrEqual(t, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")), float64(1))
}

func TestObserveStoreCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("sqlite", "find_page"))
	ObserveStore("sqlite", "find_page", time.Now(), nil)
	ObserveStore("sqlite", "find_page", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("sqlite", "find_page"))
	assert.Equal(t, float64(1), after-before)
}
