package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

// Metrics records request counts, latencies, and in-flight gauge for
// every request. Uses the route template, not the raw path, to keep
// label cardinality bounded.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncrementHTTPRequestsInFlight()

		c.Next()

		m.DecrementHTTPRequestsInFlight()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// MetricsEndpoint exposes the Prometheus scrape handler
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
