package server

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/internal/server/middleware"
	v1 "github.com/nulzo/ai-proxy/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.ErrorHandler(s.logger))

	// public
	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	guarded := []gin.HandlerFunc{}
	if s.config.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)
		guarded = append(guarded, rl.Middleware())
	}
	guarded = append(guarded, middleware.Auth(s.verifier, s.logger))

	aiHandler := v1.NewAIHandler(s.service, s.metrics, s.logger)

	ai := s.router.Group("/api/ai", guarded...)
	{
		ai.GET("/status", aiHandler.Status)
		ai.POST("", aiHandler.Complete)
	}
}
