package provider

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nulzo/ai-proxy/internal/config"
	"go.uber.org/zap"
)

// Registry is the fixed id -> adapter mapping. It is populated once and
// never mutated, so concurrent lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
}

func newRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// NewRegistry builds adapters for every provider whose settings validate.
// Providers with missing credentials are skipped and resolve as unsupported.
func NewRegistry(cfg *config.Config, log *zap.Logger) *Registry {
	validate := validator.New()

	openai := chatSettings{BaseURL: cfg.OpenAI.BaseURL, APIKey: cfg.AI.APIKey, Model: cfg.OpenAI.Model}
	azure := azureSettings{
		Endpoint:   cfg.AzureOpenAI.Endpoint,
		Key:        cfg.AzureOpenAI.Key,
		Deployment: cfg.AzureOpenAI.Deployment,
		APIVersion: cfg.AzureOpenAI.APIVersion,
	}
	gemini := geminiSettings{BaseURL: cfg.Gemini.BaseURL, APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model}
	perplexity := chatSettings{BaseURL: cfg.Perplexity.BaseURL, APIKey: cfg.Perplexity.APIKey, Model: cfg.Perplexity.Model}

	candidates := []struct {
		id       string
		settings any
		build    func() Adapter
	}{
		{OpenAI, &openai, func() Adapter { return newChatCompletions(OpenAI, openai) }},
		{Azure, &azure, func() Adapter { return newAzureDeployment(azure) }},
		{Gemini, &gemini, func() Adapter { return newGenerateContent(gemini) }},
		{Perplexity, &perplexity, func() Adapter { return newChatCompletions(Perplexity, perplexity) }},
	}

	var adapters []Adapter
	for _, c := range candidates {
		if err := validate.Struct(c.settings); err != nil {
			// field names only, values may be secrets
			log.Debug("Skipping provider with incomplete settings",
				zap.String("provider", c.id),
				zap.Strings("invalid_fields", invalidFields(err)),
			)
			continue
		}
		adapters = append(adapters, c.build())
	}

	r := newRegistry(adapters...)
	log.Info("Provider registry ready", zap.Strings("providers", r.IDs()))
	return r
}

// Resolve returns the adapter for id, matched case-insensitively.
func (r *Registry) Resolve(id string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return a, nil
}

// IDs lists registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func invalidFields(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}
