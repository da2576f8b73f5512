package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/internal/provider"
	"github.com/nulzo/ai-proxy/internal/relay"
	"github.com/nulzo/ai-proxy/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Status() api.StatusResponse {
	return api.StatusResponse{Status: "ok", Provider: "openai"}
}

func (m *MockService) Complete(ctx context.Context, req *api.CompletionRequest) (*relay.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.Result), args.Error(1)
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"unsupported", fmt.Errorf("provider %q: %w", "x", provider.ErrUnsupportedProvider), http.StatusInternalServerError, "Unsupported AI provider"},
		{"empty", provider.ErrEmptyRequest, http.StatusBadRequest, "Either prompt or messages is required"},
		{"malformed 2xx", &relay.StatusError{StatusCode: 200, Err: relay.ErrMalformedResponse}, http.StatusBadGateway, "Malformed upstream response"},
		{"malformed 503", &relay.StatusError{StatusCode: 503, Err: relay.ErrMalformedResponse}, http.StatusServiceUnavailable, "Malformed upstream response"},
		{"too large", &relay.StatusError{StatusCode: 200, Err: relay.ErrResponseTooLarge}, http.StatusBadGateway, "Upstream response too large"},
		{"timeout", fmt.Errorf("%w: deadline", relay.ErrTimeout), http.StatusGatewayTimeout, "Upstream request timed out"},
		{"transport", fmt.Errorf("%w: refused", relay.ErrTransport), http.StatusBadGateway, "Upstream request failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAPIError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestComplete_CallerGoneWritesNothing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := new(MockService)
	svc.On("Complete", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	h := NewAIHandler(svc, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(`{"prompt":"hi"}`)).WithContext(ctx)
	c.Request.Header.Set("Content-Type", "application/json")

	h.Complete(c)

	assert.True(t, c.IsAborted())
	assert.Empty(t, c.Errors)
	assert.Zero(t, w.Body.Len())
}

func TestComplete_BufferedVerbatim(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := new(MockService)
	svc.On("Complete", mock.Anything, mock.Anything).
		Return(&relay.Result{StatusCode: http.StatusTooManyRequests, Body: []byte(`{"error":"rate_limited"}`)}, nil)

	r := gin.New()
	r.POST("/api/ai", NewAIHandler(svc, nil, zap.NewNop()).Complete)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(`{"prompt":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, `{"error":"rate_limited"}`, w.Body.String())
}
