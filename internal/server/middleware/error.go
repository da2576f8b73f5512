package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/pkg/api"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// *api.Error values keep their status and message; anything else is a 500.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// a stream that already started cannot carry an error body
		if c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if apiErr.Log != nil {
				fields := []zap.Field{
					zap.Int("status", apiErr.Code),
					zap.String("request_id", RequestIDFrom(c)),
					zap.Error(apiErr.Log),
				}
				if apiErr.Code >= http.StatusInternalServerError {
					logger.Error(apiErr.Message, fields...)
				} else {
					logger.Debug(apiErr.Message, fields...)
				}
			}

			c.AbortWithStatusJSON(apiErr.Code, apiErr)
			return
		}

		logger.Error("Unhandled error",
			zap.String("request_id", RequestIDFrom(c)),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Internal Server Error"})
	}
}
