package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/service"
)

// Metrics feeds every request into the HTTP histogram, keyed by the
// route pattern so path params do not explode label cardinality.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
