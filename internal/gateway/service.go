package gateway

import (
	"context"
	"fmt"

	"github.com/nulzo/ai-proxy/internal/provider"
	"github.com/nulzo/ai-proxy/internal/relay"
	"github.com/nulzo/ai-proxy/pkg/api"
	"go.uber.org/zap"
)

// Service orchestrates one completion: resolve the configured provider,
// normalize the request and relay it. Authentication happens before this.
type Service interface {
	Status() api.StatusResponse
	Complete(ctx context.Context, req *api.CompletionRequest) (*relay.Result, error)
}

// Sender issues the outbound call; *relay.Relay satisfies it.
type Sender interface {
	Send(ctx context.Context, out *provider.Outbound) (*relay.Result, error)
}

// Resolver looks up an adapter by id; *provider.Registry satisfies it.
type Resolver interface {
	Resolve(id string) (provider.Adapter, error)
}

type service struct {
	providerID string
	registry   Resolver
	sender     Sender
	logger     *zap.Logger
}

func NewService(providerID string, registry Resolver, sender Sender, logger *zap.Logger) Service {
	if _, err := registry.Resolve(providerID); err != nil {
		// every completion will fail until an operator fixes the config
		logger.Error("Configured AI provider is not available",
			zap.String("provider", providerID),
			zap.Error(err),
		)
	}

	return &service{
		providerID: providerID,
		registry:   registry,
		sender:     sender,
		logger:     logger,
	}
}

func (s *service) Status() api.StatusResponse {
	return api.StatusResponse{Status: "ok", Provider: s.providerID}
}

func (s *service) Complete(ctx context.Context, req *api.CompletionRequest) (*relay.Result, error) {
	// fail fast on misconfiguration before looking at the payload
	adapter, err := s.registry.Resolve(s.providerID)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", s.providerID, err)
	}

	if req.Empty() {
		return nil, provider.ErrEmptyRequest
	}

	out, err := adapter.Build(req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Relaying completion",
		zap.String("provider", out.Provider),
		zap.Bool("streaming", out.Streaming),
		zap.Int("body_bytes", len(out.Body)),
	)

	return s.sender.Send(ctx, out)
}
