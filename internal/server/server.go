package server

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/internal/config"
	"github.com/nulzo/ai-proxy/internal/gateway"
	"github.com/nulzo/ai-proxy/internal/platform/metrics"
	"github.com/nulzo/ai-proxy/internal/server/middleware"
	"github.com/nulzo/ai-proxy/internal/server/validator"
	"go.uber.org/zap"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	logger   *zap.Logger
	service  gateway.Service
	verifier middleware.Authorizer
	metrics  *metrics.Registry
}

// New builds the HTTP surface. reg may be nil when metrics are disabled.
func New(cfg *config.Config, logger *zap.Logger, service gateway.Service, verifier middleware.Authorizer, reg *metrics.Registry) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.InitValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(ginzap.RecoveryWithZap(logger, true))

	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}
	if reg != nil {
		engine.Use(middleware.Metrics(reg))
	}

	engine.Use(middleware.Logger(logger))

	s := &Server{
		router:   engine,
		config:   cfg,
		logger:   logger,
		service:  service,
		verifier: verifier,
		metrics:  reg,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
