package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/internal/platform/metrics"
)

// Metrics records request counts and latency by matched route.
func Metrics(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		done := reg.Begin()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		done(route, c.Writer.Status())
	}
}
