package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Tracing starts a server span per request. Health checks are not traced.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithGinFilter(func(c *gin.Context) bool {
			return c.FullPath() != "/health"
		}),
	)
}
