package api

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"

	// ModelAssistant is the assistant role in Gemini's vocabulary.
	ModelAssistant Role = "model"
)

// CompletionRequest is the uniform body accepted by POST /api/ai.
// Either Prompt or Messages must resolve to at least one message.
type CompletionRequest struct {
	Prompt string `json:"prompt,omitempty"`

	// dive so every supplied message is validated individually
	Messages []Message `json:"messages,omitempty" binding:"omitempty,dive"`
}

// Message is a single chat turn. Role, Content and Name are decoded for
// validation and for providers that reshape the conversation. A message
// decoded from JSON marshals back to the caller's exact bytes, so fields
// this type does not model (tool_calls, tool_call_id and the like) reach
// message-array providers untouched. Messages built in code marshal from
// their fields.
type Message struct {
	Role    string          `json:"role" binding:"required"`
	Content json.RawMessage `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`

	raw json.RawMessage
}

// messageFields breaks the MarshalJSON/UnmarshalJSON recursion.
type messageFields Message

func (m *Message) UnmarshalJSON(data []byte) error {
	var f messageFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Message(f)
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(messageFields(m))
}

// NewTextMessage builds a message whose content is a plain JSON string.
func NewTextMessage(role Role, text string) Message {
	raw, _ := json.Marshal(text)
	return Message{Role: string(role), Content: raw}
}

// Text returns the textual content of the message. A string content is
// returned as-is, an array of parts is flattened to its text parts.
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	// neither a string nor parts, hand back the raw JSON
	return string(m.Content)
}

// ResolveMessages returns the caller's messages when present, otherwise a
// single user turn synthesized from the prompt. The result is empty when
// the request carries neither.
func (r *CompletionRequest) ResolveMessages() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if r.Prompt != "" {
		return []Message{NewTextMessage(User, r.Prompt)}
	}
	return nil
}

// Empty reports whether the request has nothing to send upstream.
func (r *CompletionRequest) Empty() bool {
	return len(r.ResolveMessages()) == 0
}
