package models

import (
	"encoding/json"
	"fmt"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multi-part message body.
// Type is either "text" or "image".
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part referencing a URL.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image", ImageURL: url}
}

// ToolCall is the LLM's request to invoke a named tool with a JSON
// arguments document. ID is a provider-assigned opaque string.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Signature returns the identity used by the repeated-error tracker.
func (tc ToolCall) Signature() string {
	return tc.Name + ":" + tc.Arguments
}

// Usage carries provider-reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is one entry in a conversation context. Content is either a plain
// string or an ordered list of parts; Parts takes precedence when non-nil.
// Messages are immutable once appended to a context.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"-"`
	Parts      []ContentPart `json:"-"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// UserMessage builds a user message from content parts. An empty part list
// yields an empty string body.
func UserMessage(parts []ContentPart) Message {
	if len(parts) == 1 && parts[0].Type == "text" {
		return Message{Role: RoleUser, Content: parts[0].Text}
	}
	return Message{Role: RoleUser, Parts: parts}
}

// ToolMessage builds a tool-role message answering the given tool call.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// Text returns the concatenated textual content of the message.
func (m Message) Text() string {
	if m.Parts == nil {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// EstimatedChars counts the characters that enter the token estimate:
// textual content, image URLs, and tool-call argument text.
func (m Message) EstimatedChars() int {
	n := len(m.Content)
	for _, p := range m.Parts {
		n += len(p.Text) + len(p.ImageURL)
	}
	for _, tc := range m.ToolCalls {
		n += len(tc.Name) + len(tc.Arguments)
	}
	return n
}

// messageJSON is the wire/persistence shape. Content marshals as a string,
// an array of parts, or null (assistant messages that carry only tool calls).
type messageJSON struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON encodes Content as a string, a part array, or null.
func (m Message) MarshalJSON() ([]byte, error) {
	raw := messageJSON{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
	switch {
	case m.Parts != nil:
		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return nil, err
		}
		raw.Content = parts
	case m.Content == "" && len(m.ToolCalls) > 0:
		raw.Content = json.RawMessage("null")
	default:
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		raw.Content = content
	}
	return json.Marshal(raw)
}

// UnmarshalJSON accepts string, part-array, and null content bodies.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.ToolCalls = raw.ToolCalls
	m.ToolCallID = raw.ToolCallID
	m.Content = ""
	m.Parts = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	switch raw.Content[0] {
	case '"':
		return json.Unmarshal(raw.Content, &m.Content)
	case '[':
		return json.Unmarshal(raw.Content, &m.Parts)
	default:
		return fmt.Errorf("message content is neither string nor part list")
	}
}
