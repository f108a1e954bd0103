package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/jimihq/jimi/internal/agent"
	"github.com/jimihq/jimi/pkg/models"
)

const defaultAnthropicMaxTokens = 8192

// AnthropicProvider speaks the Anthropic Messages API.
//
// Tool calls arrive as content blocks: a content_block_start carrying the id
// and name, then input_json_delta events with argument fragments. Both are
// forwarded as tool-call chunks; thinking deltas become reasoning content.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model

	maxRetries int
	retryDelay time.Duration
}

// AnthropicConfig holds construction parameters for AnthropicProvider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	MaxRetries int
	RetryDelay time.Duration
}

// NewAnthropic creates a provider for the Anthropic API.
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	p := &AnthropicProvider{
		client:     anthropic.NewClient(opts...),
		model:      anthropic.Model(cfg.Model),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
	if p.model == "" {
		p.model = anthropic.ModelClaudeSonnet4_20250514
	}
	if p.maxRetries <= 0 {
		p.maxRetries = defaultMaxRetries
	}
	if p.retryDelay <= 0 {
		p.retryDelay = defaultRetryDelay
	}
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// MaxContextSize returns the Claude context window. All current Claude
// models ship a 200k window.
func (p *AnthropicProvider) MaxContextSize() int {
	return 200_000
}

// Complete performs a non-streaming message request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.Request) (models.Message, *models.Usage, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return models.Message{}, nil, err
	}

	var resp *anthropic.Message
	err = withRetry(ctx, p.maxRetries, p.retryDelay, func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return models.Message{}, nil, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	msg := models.Message{Role: models.RoleAssistant}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: string(toolUse.Input),
			})
		}
	}
	msg.Content = text.String()

	usage := &models.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return msg, usage, nil
}

// Stream performs a streaming message request, forwarding events as chunks.
func (p *AnthropicProvider) Stream(ctx context.Context, req *agent.Request) (<-chan agent.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan agent.Chunk)
	go p.readStream(stream, chunks)
	return chunks, nil
}

func (p *AnthropicProvider) readStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- agent.Chunk) {
	defer close(chunks)
	defer stream.Close()

	var inputTokens, outputTokens int
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			inputTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				chunks <- agent.Chunk{
					Kind:       agent.ChunkToolCall,
					ToolCallID: toolUse.ID,
					ToolName:   toolUse.Name,
				}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- agent.Chunk{Kind: agent.ChunkContent, Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- agent.Chunk{Kind: agent.ChunkContent, Text: delta.Thinking, Reasoning: true}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					chunks <- agent.Chunk{Kind: agent.ChunkToolCall, ArgumentsDelta: delta.PartialJSON}
				}
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				outputTokens = int(messageDelta.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- agent.Chunk{
				Kind: agent.ChunkDone,
				Usage: &models.Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: outputTokens,
					TotalTokens:      inputTokens + outputTokens,
				},
			}
			return
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- agent.Chunk{Err: fmt.Errorf("anthropic: stream failed: %w", err)}
	}
}

func (p *AnthropicProvider) buildParams(req *agent.Request) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// convertAnthropicMessages maps session messages to Anthropic's block-based
// format. Tool-role messages become user messages carrying a tool_result
// block; consecutive tool results are merged into one user turn, which the
// API requires.
func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == models.RoleTool {
			pendingResults = append(pendingResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flushResults()

		var content []anthropic.ContentBlockParamUnion
		if msg.Parts != nil {
			for _, part := range msg.Parts {
				if part.Type == "image" {
					content = append(content, anthropic.NewImageBlock(anthropic.URLImageSourceParam{
						Type: "url",
						URL:  part.ImageURL,
					}))
					continue
				}
				if part.Text != "" {
					content = append(content, anthropic.NewTextBlock(part.Text))
				}
			}
		} else if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(json.RawMessage(tc.Arguments), &input); err != nil {
				return nil, fmt.Errorf("anthropic: invalid arguments on tool call %s: %w", tc.ID, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	flushResults()
	return out, nil
}

func convertAnthropicTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for tool %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: schema for tool %s produced no definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		out = append(out, param)
	}
	return out, nil
}
