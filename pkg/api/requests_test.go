package api_test

import (
	"encoding/json"
	"testing"

	"github.com/nulzo/ai-proxy/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMessages_PromptOnly(t *testing.T) {
	req := api.CompletionRequest{Prompt: "hi"}

	msgs := req.ResolveMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	assert.JSONEq(t, `"hi"`, string(msgs[0].Content))
	assert.False(t, req.Empty())
}

func TestResolveMessages_MessagesWin(t *testing.T) {
	req := api.CompletionRequest{
		Prompt: "ignored",
		Messages: []api.Message{
			api.NewTextMessage(api.System, "be brief"),
			api.NewTextMessage(api.User, "hello"),
		},
	}

	msgs := req.ResolveMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "hello", msgs[1].Text())
}

func TestResolveMessages_Empty(t *testing.T) {
	assert.True(t, (&api.CompletionRequest{}).Empty())
	assert.True(t, (&api.CompletionRequest{Messages: []api.Message{}}).Empty())
}

func TestMessageText(t *testing.T) {
	var m api.Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"a"},{"type":"image_url"},{"type":"text","text":"b"}]}`), &m))
	assert.Equal(t, "a\nb", m.Text())

	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"plain"}`), &m))
	assert.Equal(t, "plain", m.Text())

	assert.Equal(t, "", api.Message{Role: "user"}.Text())
}

func TestMessageMarshal_KeepsCallerBytes(t *testing.T) {
	in := `{"role":"tool","tool_call_id":"c1","content":"42"}`
	var m api.Message
	require.NoError(t, json.Unmarshal([]byte(in), &m))
	assert.Equal(t, "tool", m.Role)
	assert.Equal(t, "42", m.Text())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	// no content key in, no content key out
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","tool_calls":[]}`), &m))
	out, err = json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "content")
}

func TestMessageMarshal_BuiltInCode(t *testing.T) {
	out, err := json.Marshal(api.NewTextMessage(api.User, "hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(out))

	out, err = json.Marshal(api.Message{Role: "assistant"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant"}`, string(out))
}

func TestErrorMarshal(t *testing.T) {
	err := api.InternalError("Unsupported AI provider", assert.AnError)

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.JSONEq(t, `{"error":"Unsupported AI provider"}`, string(data))
	assert.ErrorIs(t, err, assert.AnError)
}
