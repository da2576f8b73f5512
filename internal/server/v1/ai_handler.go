package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/internal/gateway"
	"github.com/nulzo/ai-proxy/internal/platform/metrics"
	"github.com/nulzo/ai-proxy/internal/provider"
	"github.com/nulzo/ai-proxy/internal/relay"
	"github.com/nulzo/ai-proxy/internal/server/middleware"
	"github.com/nulzo/ai-proxy/internal/server/validator"
	"github.com/nulzo/ai-proxy/pkg/api"
	"go.uber.org/zap"
)

type AIHandler struct {
	service gateway.Service
	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewAIHandler(service gateway.Service, reg *metrics.Registry, logger *zap.Logger) *AIHandler {
	return &AIHandler{service: service, metrics: reg, logger: logger}
}

// Status reports the configured provider. It never contacts an upstream.
func (h *AIHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// Complete relays one completion to the configured provider. Streaming
// providers are piped through chunk by chunk; buffered ones are returned
// with the upstream status and body untouched.
func (h *AIHandler) Complete(c *gin.Context) {
	var req api.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.BadRequestError(validator.Message(err), err))
		return
	}

	ctx := c.Request.Context()
	providerID := h.service.Status().Provider

	res, err := h.service.Complete(ctx, &req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			h.clientGone(c, providerID, err, 0)
			return
		}
		h.metrics.RelayError(providerID, errorKind(err))
		_ = c.Error(toAPIError(err))
		return
	}

	h.metrics.UpstreamResponse(providerID, res.StatusCode)

	if !res.Streamed() {
		c.Data(res.StatusCode, "application/json", res.Body)
		return
	}

	h.stream(c, providerID, res)
}

func (h *AIHandler) stream(c *gin.Context, providerID string, res *relay.Result) {
	header := c.Writer.Header()
	header.Set("Content-Type", res.ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Writer.WriteHeader(res.StatusCode)
	c.Writer.Flush()

	n, err := relay.Pipe(c.Request.Context(), c.Writer, c.Writer.Flush, res.Stream)
	h.metrics.StreamBytes(providerID, n)

	switch {
	case err == nil:
	case errors.Is(err, relay.ErrClientGone), errors.Is(err, context.Canceled):
		h.clientGone(c, providerID, err, n)
	default:
		// headers are gone; all we can do is cut the stream short
		h.metrics.RelayError(providerID, errorKind(err))
		h.logger.Warn("Upstream stream aborted",
			zap.String("provider", providerID),
			zap.String("request_id", middleware.RequestIDFrom(c)),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
		c.Abort()
	}
}

func (h *AIHandler) clientGone(c *gin.Context, providerID string, err error, n int64) {
	h.metrics.RelayError(providerID, "client_gone")
	h.logger.Info("Client disconnected",
		zap.String("provider", providerID),
		zap.String("request_id", middleware.RequestIDFrom(c)),
		zap.Int64("bytes", n),
		zap.Error(err),
	)
	c.Abort()
}

// toAPIError maps a completion failure onto the status and message the
// caller sees. Causes stay in Log and are never rendered.
func toAPIError(err error) *api.Error {
	var statusErr *relay.StatusError
	upstreamStatus := http.StatusBadGateway
	if errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusMultipleChoices {
		upstreamStatus = statusErr.StatusCode
	}

	switch {
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return api.InternalError("Unsupported AI provider", err)
	case errors.Is(err, provider.ErrEmptyRequest):
		return api.BadRequestError("Either prompt or messages is required", err)
	case errors.Is(err, relay.ErrResponseTooLarge):
		return api.NewError(upstreamStatus, "Upstream response too large", err)
	case errors.Is(err, relay.ErrMalformedResponse):
		return api.NewError(upstreamStatus, "Malformed upstream response", err)
	case errors.Is(err, relay.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return api.NewError(http.StatusGatewayTimeout, "Upstream request timed out", err)
	case errors.Is(err, relay.ErrTransport):
		return api.ProviderError("Upstream request failed", err)
	default:
		return api.InternalError("Internal Server Error", err)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, provider.ErrEmptyRequest):
		return "empty_request"
	case errors.Is(err, relay.ErrResponseTooLarge):
		return "too_large"
	case errors.Is(err, relay.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, relay.ErrTimeout):
		return "timeout"
	case errors.Is(err, relay.ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}
