package provider

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/nulzo/ai-proxy/internal/config"
	"github.com/nulzo/ai-proxy/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fullConfig() *config.Config {
	return &config.Config{
		AI:     config.AIConfig{Provider: "openai", APIKey: "sk-openai"},
		OpenAI: config.OpenAIConfig{Model: "gpt-4o", BaseURL: "https://api.openai.com/v1/"},
		AzureOpenAI: config.AzureOpenAIConfig{
			Endpoint:   "https://res.openai.azure.com",
			Key:        "azure-key",
			Deployment: "gpt-4o",
			APIVersion: config.DefaultAzureAPIVersion,
		},
		Gemini: config.GeminiConfig{
			APIKey:  "gem-key",
			Model:   config.DefaultGeminiModel,
			BaseURL: config.DefaultGeminiBaseURL,
		},
		Perplexity: config.PerplexityConfig{
			APIKey:  "pplx-key",
			Model:   "sonar",
			BaseURL: config.DefaultPerplexityBaseURL,
		},
	}
}

func conversation() *api.CompletionRequest {
	return &api.CompletionRequest{
		Messages: []api.Message{
			api.NewTextMessage(api.System, "You are terse."),
			api.NewTextMessage(api.User, "Hello"),
			api.NewTextMessage(api.Assistant, "Hi."),
			api.NewTextMessage(api.User, "Tell me a joke"),
		},
	}
}

type sentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// bodyMessages extracts (role, text) pairs from either wire shape.
func bodyMessages(t *testing.T, out *Outbound) []sentMessage {
	t.Helper()

	if out.Provider == Gemini {
		var gr geminiRequest
		require.NoError(t, json.Unmarshal(out.Body, &gr))
		msgs := make([]sentMessage, 0, len(gr.Contents))
		for _, c := range gr.Contents {
			require.Len(t, c.Parts, 1)
			msgs = append(msgs, sentMessage{Role: c.Role, Content: c.Parts[0].Text})
		}
		return msgs
	}

	var body struct {
		Messages []sentMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out.Body, &body))
	return body.Messages
}

func TestNewRegistry_AllProviders(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	assert.Equal(t, []string{Azure, Gemini, OpenAI, Perplexity}, r.IDs())
}

func TestNewRegistry_SkipsIncompleteProviders(t *testing.T) {
	cfg := fullConfig()
	cfg.AI.APIKey = ""
	cfg.AzureOpenAI.Endpoint = "not a url"

	r := NewRegistry(cfg, zap.NewNop())

	_, err := r.Resolve(OpenAI)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	_, err = r.Resolve(Azure)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = r.Resolve(Gemini)
	assert.NoError(t, err)
}

func TestResolve(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())

	a, err := r.Resolve(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, OpenAI, a.ID())

	for _, id := range []string{"", "anthropic", "open-ai"} {
		_, err := r.Resolve(id)
		assert.ErrorIs(t, err, ErrUnsupportedProvider, id)
	}
}

func TestBuild_PreservesMessagesForEveryProvider(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	req := conversation()

	for _, id := range r.IDs() {
		t.Run(id, func(t *testing.T) {
			a, err := r.Resolve(id)
			require.NoError(t, err)

			out, err := a.Build(req)
			require.NoError(t, err)

			got := bodyMessages(t, out)
			require.Len(t, got, len(req.Messages))
			for i, m := range req.Messages {
				assert.Equal(t, m.Text(), got[i].Content, "message %d", i)

				wantRole := m.Role
				if id == Gemini && m.Role == string(api.Assistant) {
					wantRole = string(api.ModelAssistant)
				}
				assert.Equal(t, wantRole, got[i].Role, "message %d", i)
			}
		})
	}
}

func TestBuild_MessagesPassThroughUnmodified(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	a, err := r.Resolve(OpenAI)
	require.NoError(t, err)

	var req api.CompletionRequest
	raw := `{"messages":[{"role":"user","content":[{"type":"text","text":"describe"},{"type":"image_url","image_url":{"url":"https://x/y.png"}}]}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	out, err := a.Build(&req)
	require.NoError(t, err)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out.Body, &body))
	assert.JSONEq(t, `[{"role":"user","content":[{"type":"text","text":"describe"},{"type":"image_url","image_url":{"url":"https://x/y.png"}}]}]`, string(body["messages"]))
}

func TestBuild_MessagesKeepUnknownFields(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())

	messages := `[{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"add","arguments":"{}"}}]},{"role":"tool","tool_call_id":"c1","content":"42"},{"role":"user","name":"ann","content":"thanks"}]`
	var req api.CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"messages":`+messages+`}`), &req))

	for _, id := range []string{OpenAI, Azure, Perplexity} {
		a, err := r.Resolve(id)
		require.NoError(t, err)

		out, err := a.Build(&req)
		require.NoError(t, err)

		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(out.Body, &body))
		assert.JSONEq(t, messages, string(body["messages"]), id)
	}
}

func TestBuild_PromptSynthesizesUserTurn(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	req := &api.CompletionRequest{Prompt: "hi"}

	for _, id := range []string{OpenAI, Azure, Perplexity} {
		a, err := r.Resolve(id)
		require.NoError(t, err)

		out, err := a.Build(req)
		require.NoError(t, err)
		assert.Equal(t, []sentMessage{{Role: "user", Content: "hi"}}, bodyMessages(t, out), id)
	}
}

func TestBuild_OpenAIWire(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	a, _ := r.Resolve(OpenAI)

	out, err := a.Build(&api.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.True(t, out.Streaming)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", out.URL)
	assert.Equal(t, "Bearer sk-openai", out.Header.Get("Authorization"))
	assert.Equal(t, "application/json", out.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`, string(out.Body))
}

func TestBuild_AzureWire(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	a, _ := r.Resolve(Azure)

	out, err := a.Build(&api.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.True(t, out.Streaming)
	assert.Equal(t, "https://res.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2023-07-01-preview", out.URL)
	assert.Equal(t, "azure-key", out.Header.Get("api-key"))
	assert.Empty(t, out.Header.Get("Authorization"))
	assert.JSONEq(t, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`, string(out.Body))
}

func TestBuild_GeminiWire(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	a, _ := r.Resolve(Gemini)

	out, err := a.Build(&api.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.False(t, out.Streaming)
	u, err := url.Parse(out.URL)
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", u.Path)
	assert.Equal(t, "gem-key", u.Query().Get("key"))
	assert.JSONEq(t, `{"contents":[{"parts":[{"text":"hi"}]}]}`, string(out.Body))
}

func TestBuild_PerplexityWire(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())
	a, _ := r.Resolve(Perplexity)

	out, err := a.Build(&api.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.perplexity.ai/chat/completions", out.URL)
	assert.Equal(t, "Bearer pplx-key", out.Header.Get("Authorization"))
	assert.JSONEq(t, `{"model":"sonar","messages":[{"role":"user","content":"hi"}],"stream":true}`, string(out.Body))
}

func TestBuild_EmptyRequest(t *testing.T) {
	r := NewRegistry(fullConfig(), zap.NewNop())

	for _, id := range r.IDs() {
		a, _ := r.Resolve(id)
		_, err := a.Build(&api.CompletionRequest{})
		assert.ErrorIs(t, err, ErrEmptyRequest, id)
	}
}
