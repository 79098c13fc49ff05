package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/metrics"
)

// RequestLogging logs one line per request and feeds the HTTP metrics.
// Endpoint labels use the route template, not the raw path, to keep metric
// cardinality bounded.
func RequestLogging() gin.HandlerFunc {
	log := logrus.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.RequestsTotal.WithLabelValues(endpoint, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(endpoint, c.Request.Method).Observe(elapsed.Seconds())

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": elapsed,
		})
		if status >= 500 {
			entry.Error("request failed")
		} else {
			entry.Debug("request handled")
		}
	}
}
