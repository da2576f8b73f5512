package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/pkg/api"
)

type HealthHandler struct {
	started time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now()}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status: "healthy",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
