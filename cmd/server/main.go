package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/ai-proxy/cmd"
	"github.com/nulzo/ai-proxy/internal/auth"
	"github.com/nulzo/ai-proxy/internal/config"
	"github.com/nulzo/ai-proxy/internal/gateway"
	"github.com/nulzo/ai-proxy/internal/platform/logger"
	"github.com/nulzo/ai-proxy/internal/platform/metrics"
	"github.com/nulzo/ai-proxy/internal/platform/otel"
	"github.com/nulzo/ai-proxy/internal/provider"
	"github.com/nulzo/ai-proxy/internal/relay"
	"github.com/nulzo/ai-proxy/internal/server"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.Initialize(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(cfg.Tracing.ServiceName, cmd.AppVersion, log, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New()
	}

	var identity auth.IdentityVerifier
	if cfg.Firebase.ProjectID != "" {
		identity = auth.NewFirebaseVerifier(cfg.Firebase.ProjectID, cfg.Firebase.CertsURL)
	} else {
		log.Warn("No identity backend configured; only the site API key is accepted")
	}
	verifier := auth.NewVerifier(cfg.Site.APIKey, identity)

	registry := provider.NewRegistry(cfg, log)
	sender := relay.New(relay.NewClient(),
		relay.WithTimeout(cfg.Relay.Timeout),
		relay.WithMaxBodyBytes(cfg.Relay.MaxBodyBytes),
	)
	service := gateway.NewService(cfg.AI.Provider, registry, sender, log)

	srv := server.New(cfg, log, service, verifier, reg)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go cmd.CheckForUpdates(ctx, cfg.Update.CheckURL, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting AI gateway",
			zap.String("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Env),
			zap.String("provider", cfg.AI.Provider),
			zap.String("version", cmd.AppVersion),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
