// Package provider maps a configured provider identifier to a wire adapter
// and translates the gateway's uniform request into that provider's body.
package provider

import (
	"errors"
	"net/http"

	"github.com/nulzo/ai-proxy/pkg/api"
)

const (
	OpenAI     = "openai"
	Azure      = "azure"
	Gemini     = "gemini"
	Perplexity = "perplexity"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported AI provider")
	ErrEmptyRequest        = errors.New("request has neither prompt nor messages")
)

// Outbound is everything the relay needs to issue one upstream call.
// URL may carry credentials in its query and must not be logged.
type Outbound struct {
	Provider  string
	URL       string
	Header    http.Header
	Body      []byte
	Streaming bool
}

// Adapter is an immutable per-provider descriptor. Implementations are
// safe for concurrent use.
type Adapter interface {
	ID() string
	Streaming() bool
	Build(req *api.CompletionRequest) (*Outbound, error)
}

func jsonHeader(streaming bool) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if streaming {
		h.Set("Accept", "text/event-stream")
	}
	return h
}
