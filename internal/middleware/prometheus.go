package middleware

import (
	"strconv"
	"time"

	"github.com/andresedu1996/agenda-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Prometheus records request counters and latency histograms for every
// route. The route template is used as the endpoint label so ids do not
// explode cardinality.
func Prometheus() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(c.Request.Method, endpoint, status)
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}
