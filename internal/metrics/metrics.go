package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_store_operation_duration_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"driver", "op"},
	)

	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_store_errors_total",
			Help: "Store operations that returned an error",
		},
		[]string{"driver", "op"},
	)

	// Business metrics
	UnreadIncrements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_unread_increments_total",
			Help: "Total per-user unread counter increments",
		},
	)

	FeedQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_feed_queries_total",
			Help: "Total subscription feed queries",
		},
		[]string{"since"}, // "set" or "unset"
	)

	MessageEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_message_events_total",
			Help: "Consumed message events by outcome",
		},
		[]string{"outcome"}, // "ok", "invalid", "failed"
	)
)

// ObserveStore records the latency of one store operation started at start.
func ObserveStore(driver, op string, start time.Time, err error) {
	StoreOperationDuration.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreErrorsTotal.WithLabelValues(driver, op).Inc()
	}
}

// GinMiddleware records request count and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}
