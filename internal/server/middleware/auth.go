package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/pkg/api"
	"go.uber.org/zap"
)

// Authorizer validates a raw Authorization header; *auth.Verifier satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, header string) error
}

// Auth rejects any request whose Authorization header does not pass the
// verifier. Every failure renders the same 401 body; the cause is logged.
func Auth(verifier Authorizer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := verifier.Authorize(c.Request.Context(), c.GetHeader("Authorization")); err != nil {
			logger.Debug("Rejected credential",
				zap.String("path", c.FullPath()),
				zap.String("request_id", RequestIDFrom(c)),
				zap.Error(err),
			)
			apiErr := api.UnauthorizedError(err)
			c.AbortWithStatusJSON(apiErr.Code, apiErr)
			return
		}

		c.Next()
	}
}
