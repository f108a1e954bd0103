package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/jimihq/jimi/internal/agent"
	"github.com/jimihq/jimi/pkg/models"
)

var echoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"text": {"type": "string"}},
	"required": ["text"]
}`)

func TestOpenAIConvertMessages(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "read a.txt"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "read_file", Arguments: `{"path":"a.txt"}`},
		}},
		models.ToolMessage("c1", "contents"),
	}

	out := convertOpenAIMessages("be helpful", msgs)
	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4 (system + 3)", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be helpful" {
		t.Errorf("first message = %+v, want system prompt", out[0])
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].ID != "c1" {
		t.Errorf("assistant tool calls = %+v", out[2].ToolCalls)
	}
	if out[3].Role != "tool" || out[3].ToolCallID != "c1" || out[3].Content != "contents" {
		t.Errorf("tool message = %+v", out[3])
	}
}

func TestOpenAIConvertMultiPartMessage(t *testing.T) {
	msgs := []models.Message{{
		Role: models.RoleUser,
		Parts: []models.ContentPart{
			models.TextPart("what is this?"),
			models.ImagePart("https://example.com/shot.png"),
		},
	}}

	out := convertOpenAIMessages("", msgs)
	if len(out) != 1 {
		t.Fatalf("got %d messages, want 1", len(out))
	}
	mc := out[0].MultiContent
	if len(mc) != 2 {
		t.Fatalf("multi content = %+v, want text + image", mc)
	}
	if mc[0].Type != openai.ChatMessagePartTypeText || mc[0].Text != "what is this?" {
		t.Errorf("part 0 = %+v", mc[0])
	}
	if mc[1].Type != openai.ChatMessagePartTypeImageURL || mc[1].ImageURL.URL != "https://example.com/shot.png" {
		t.Errorf("part 1 = %+v", mc[1])
	}
}

func TestOpenAIConvertTools(t *testing.T) {
	tools, err := convertOpenAITools([]agent.ToolSchema{
		{Name: "echo", Description: "Echoes text.", InputSchema: echoSchema},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].Function.Name != "echo" {
		t.Fatalf("tools = %+v", tools)
	}

	if _, err := convertOpenAITools([]agent.ToolSchema{
		{Name: "bad", InputSchema: json.RawMessage("{")},
	}); err == nil {
		t.Error("malformed schema accepted")
	}
}

func TestOpenAIMaxContextSize(t *testing.T) {
	cases := []struct {
		model string
		want  int
	}{
		{"gpt-4o", 128_000},
		{"gpt-4o-mini", 128_000},
		{"gpt-4.1", 1_047_576},
		{"gpt-4", 8_192},
		{"o3-mini", 200_000},
		{"some-compatible-model", 128_000},
	}
	for _, tc := range cases {
		p := NewOpenAI(OpenAIConfig{APIKey: "k", Model: tc.model})
		if got := p.MaxContextSize(); got != tc.want {
			t.Errorf("MaxContextSize(%s) = %d, want %d", tc.model, got, tc.want)
		}
	}
}

func TestAnthropicConvertMessagesMergesToolResults(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "go"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "read_file", Arguments: `{"path":"a"}`},
			{ID: "c2", Name: "read_file", Arguments: `{"path":"b"}`},
		}},
		models.ToolMessage("c1", "alpha"),
		models.ToolMessage("c2", "beta"),
	}

	out, err := convertAnthropicMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	// Both tool results collapse into a single user turn.
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	if out[1].Role != anthropic.MessageParamRoleAssistant || len(out[1].Content) != 2 {
		t.Errorf("assistant turn = %+v, want two tool_use blocks", out[1])
	}
	if out[2].Role != anthropic.MessageParamRoleUser || len(out[2].Content) != 2 {
		t.Errorf("result turn = %+v, want two tool_result blocks", out[2])
	}
}

func TestAnthropicConvertMessagesRejectsBadArguments(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "echo", Arguments: `{"unterminated`},
		}},
	}
	if _, err := convertAnthropicMessages(msgs); err == nil {
		t.Error("malformed tool arguments accepted")
	}
}

func TestAnthropicConvertTools(t *testing.T) {
	tools, err := convertAnthropicTools([]agent.ToolSchema{
		{Name: "echo", Description: "Echoes text.", InputSchema: echoSchema},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].OfTool.Name != "echo" {
		t.Errorf("name = %q", tools[0].OfTool.Name)
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("status code: 429, rate limit exceeded"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("502 Bad Gateway"), true},
		{errors.New("status code: 400, invalid request"), false},
		{errors.New("invalid api key"), false},
	}
	for _, tc := range cases {
		if got := isRetryableError(tc.err); got != tc.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
