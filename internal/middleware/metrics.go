package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/pkg/metrics"
)

// MetricsMiddleware records latency and a request count per route template.
// Unknown paths share the "unmatched" label.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(route).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, statusClass(c.Writer.Status())).Inc()
	}
}

// statusClass maps 201 to "2xx".
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
