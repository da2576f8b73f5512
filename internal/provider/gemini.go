package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nulzo/ai-proxy/pkg/api"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

// generateContent is Gemini's one-shot generateContent call with the API
// key in the query string.
type generateContent struct {
	endpoint string
}

type geminiSettings struct {
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`
	Model   string `validate:"required"`
}

func newGenerateContent(s geminiSettings) *generateContent {
	return &generateContent{
		endpoint: fmt.Sprintf("%s/models/%s:generateContent?key=%s",
			strings.TrimRight(s.BaseURL, "/"),
			url.PathEscape(s.Model),
			url.QueryEscape(s.APIKey),
		),
	}
}

func (a *generateContent) ID() string      { return Gemini }
func (a *generateContent) Streaming() bool { return false }

func (a *generateContent) Build(req *api.CompletionRequest) (*Outbound, error) {
	shape, err := toGemini(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(shape)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to marshal request body: %w", err)
	}

	return &Outbound{Provider: Gemini, URL: a.endpoint, Header: jsonHeader(false), Body: body}, nil
}

// toGemini converts a request into generateContent's contents/parts nesting.
// A prompt is sent as a single role-less part; otherwise each message
// becomes one content entry in order.
func toGemini(req *api.CompletionRequest) (geminiRequest, error) {
	if req.Prompt != "" {
		return geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}}}, nil
	}

	if len(req.Messages) == 0 {
		return geminiRequest{}, ErrEmptyRequest
	}

	gr := geminiRequest{Contents: make([]geminiContent, 0, len(req.Messages))}
	for _, m := range req.Messages {
		role := m.Role
		if role == string(api.Assistant) {
			role = string(api.ModelAssistant)
		}
		gr.Contents = append(gr.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Text()}},
		})
	}
	return gr, nil
}
