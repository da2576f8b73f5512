package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/nulzo/ai-proxy/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bind(t *testing.T, body string) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	InitValidator()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req api.CompletionRequest
	return c.ShouldBindJSON(&req)
}

func TestMessage_MissingRole(t *testing.T) {
	err := bind(t, `{"messages":[{"content":"hi"}]}`)
	require.Error(t, err)

	assert.Equal(t, map[string]string{"messages[0].role": "role is a required field"}, Fields(err))
	assert.Equal(t, "role is a required field", Message(err))
}

func TestFields_UsesTranslatorForEveryTag(t *testing.T) {
	InitValidator()

	type pick struct {
		Mode string `json:"mode" binding:"oneof=fast slow"`
	}
	err := binding.Validator.ValidateStruct(pick{Mode: "medium"})
	require.Error(t, err)

	assert.Equal(t, map[string]string{"mode": "mode must be one of [fast slow]"}, Fields(err))
}

func TestMessage_MalformedJSON(t *testing.T) {
	err := bind(t, `{"prompt":`)
	require.Error(t, err)

	assert.Nil(t, Fields(err))
	assert.Equal(t, InvalidBody, Message(err))
}

func TestMessage_ArbitraryError(t *testing.T) {
	assert.Equal(t, InvalidBody, Message(errors.New("boom")))
}

func TestInitValidator_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitValidator()
		InitValidator()
	})
}
