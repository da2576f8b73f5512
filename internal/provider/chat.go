package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nulzo/ai-proxy/pkg/api"
)

// chatBody is the OpenAI chat-completions request shape, shared by OpenAI,
// Perplexity and Azure (which omits the model).
type chatBody struct {
	Model    string        `json:"model,omitempty"`
	Messages []api.Message `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatCompletions speaks the OpenAI chat-completions dialect against any
// host that accepts a bearer key.
type chatCompletions struct {
	id       string
	endpoint string
	apiKey   string
	model    string
}

type chatSettings struct {
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`
	Model   string `validate:"required"`
}

func newChatCompletions(id string, s chatSettings) *chatCompletions {
	return &chatCompletions{
		id:       id,
		endpoint: strings.TrimRight(s.BaseURL, "/") + "/chat/completions",
		apiKey:   s.APIKey,
		model:    s.Model,
	}
}

func (a *chatCompletions) ID() string      { return a.id }
func (a *chatCompletions) Streaming() bool { return true }

func (a *chatCompletions) Build(req *api.CompletionRequest) (*Outbound, error) {
	msgs := req.ResolveMessages()
	if len(msgs) == 0 {
		return nil, ErrEmptyRequest
	}

	body, err := json.Marshal(chatBody{Model: a.model, Messages: msgs, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request body: %w", a.id, err)
	}

	h := jsonHeader(true)
	h.Set("Authorization", "Bearer "+a.apiKey)

	return &Outbound{Provider: a.id, URL: a.endpoint, Header: h, Body: body, Streaming: true}, nil
}

// azureDeployment is chat-completions scoped to an Azure deployment, keyed
// by the api-key header.
type azureDeployment struct {
	endpoint string
	apiKey   string
}

type azureSettings struct {
	Endpoint   string `validate:"required,url"`
	Key        string `validate:"required"`
	Deployment string `validate:"required"`
	APIVersion string `validate:"required"`
}

func newAzureDeployment(s azureSettings) *azureDeployment {
	return &azureDeployment{
		endpoint: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(s.Endpoint, "/"),
			url.PathEscape(s.Deployment),
			url.QueryEscape(s.APIVersion),
		),
		apiKey: s.Key,
	}
}

func (a *azureDeployment) ID() string      { return Azure }
func (a *azureDeployment) Streaming() bool { return true }

func (a *azureDeployment) Build(req *api.CompletionRequest) (*Outbound, error) {
	msgs := req.ResolveMessages()
	if len(msgs) == 0 {
		return nil, ErrEmptyRequest
	}

	// the deployment in the URL selects the model
	body, err := json.Marshal(chatBody{Messages: msgs, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("azure: failed to marshal request body: %w", err)
	}

	h := jsonHeader(true)
	h.Set("api-key", a.apiKey)

	return &Outbound{Provider: Azure, URL: a.endpoint, Header: h, Body: body, Streaming: true}, nil
}
