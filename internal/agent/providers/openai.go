package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jimihq/jimi/internal/agent"
	"github.com/jimihq/jimi/pkg/models"
)

// OpenAIProvider speaks the OpenAI chat completions API, including
// OpenAI-compatible endpoints selected via BaseURL.
//
// Differences from the Anthropic provider worth knowing:
//   - The system prompt travels as the first message in the array.
//   - Tool-call deltas arrive fragmented; the first fragment carries the id
//     and name, later ones only argument text. The provider forwards them
//     as-is and lets the accumulator stitch them together.
//   - Usage arrives in a trailing chunk with no choices, requested through
//     StreamOptions.IncludeUsage.
//
// Safe for concurrent use; every Stream call owns its own SDK stream and
// reader goroutine.
type OpenAIProvider struct {
	client *openai.Client
	model  string

	maxRetries int
	retryDelay time.Duration
}

// OpenAIConfig holds construction parameters for OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// MaxRetries and RetryDelay tune the transient-failure retry loop.
	// Zero values select the defaults (3 attempts, 1s linear backoff).
	MaxRetries int
	RetryDelay time.Duration
}

// NewOpenAI creates a provider for an OpenAI or OpenAI-compatible endpoint.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	p := &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
	if p.model == "" {
		p.model = openai.GPT4o
	}
	if p.maxRetries <= 0 {
		p.maxRetries = defaultMaxRetries
	}
	if p.retryDelay <= 0 {
		p.retryDelay = defaultRetryDelay
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

// openaiContextWindows maps model name prefixes to context sizes in tokens.
// Longest prefix wins.
var openaiContextWindows = map[string]int{
	"gpt-4.1":       1_047_576,
	"gpt-4o":        128_000,
	"gpt-4-turbo":   128_000,
	"gpt-4":         8_192,
	"gpt-3.5-turbo": 16_385,
	"o1":            200_000,
	"o3":            200_000,
	"o4":            200_000,
}

func (p *OpenAIProvider) MaxContextSize() int {
	size, bestLen := 128_000, 0
	for prefix, window := range openaiContextWindows {
		if strings.HasPrefix(p.model, prefix) && len(prefix) > bestLen {
			size, bestLen = window, len(prefix)
		}
	}
	return size
}

// Complete performs a non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.Request) (models.Message, *models.Usage, error) {
	apiReq, err := p.buildRequest(req)
	if err != nil {
		return models.Message{}, nil, err
	}

	var resp openai.ChatCompletionResponse
	err = withRetry(ctx, p.maxRetries, p.retryDelay, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, apiReq)
		return callErr
	})
	if err != nil {
		return models.Message{}, nil, fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, nil, fmt.Errorf("openai: response contained no choices")
	}

	choice := resp.Choices[0].Message
	msg := models.Message{Role: models.RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	usage := &models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return msg, usage, nil
}

// Stream performs a streaming chat completion, forwarding deltas as chunks.
func (p *OpenAIProvider) Stream(ctx context.Context, req *agent.Request) (<-chan agent.Chunk, error) {
	apiReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}
	apiReq.Stream = true
	apiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	var stream *openai.ChatCompletionStream
	err = withRetry(ctx, p.maxRetries, p.retryDelay, func() error {
		var callErr error
		stream, callErr = p.client.CreateChatCompletionStream(ctx, apiReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("openai: stream creation failed: %w", err)
	}

	chunks := make(chan agent.Chunk)
	go p.readStream(stream, chunks)
	return chunks, nil
}

func (p *OpenAIProvider) readStream(stream *openai.ChatCompletionStream, chunks chan<- agent.Chunk) {
	defer close(chunks)
	defer stream.Close()

	var usage *models.Usage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			chunks <- agent.Chunk{Kind: agent.ChunkDone, Usage: usage}
			return
		}
		if err != nil {
			chunks <- agent.Chunk{Err: fmt.Errorf("openai: stream read failed: %w", err)}
			return
		}

		// The usage-only trailer has no choices.
		if resp.Usage != nil {
			usage = &models.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.ReasoningContent != "" {
			chunks <- agent.Chunk{Kind: agent.ChunkContent, Text: delta.ReasoningContent, Reasoning: true}
		}
		if delta.Content != "" {
			chunks <- agent.Chunk{Kind: agent.ChunkContent, Text: delta.Content}
		}
		for _, tc := range delta.ToolCalls {
			chunks <- agent.Chunk{
				Kind:           agent.ChunkToolCall,
				ToolCallID:     tc.ID,
				ToolName:       tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			}
		}
	}
}

func (p *OpenAIProvider) buildRequest(req *agent.Request) (openai.ChatCompletionRequest, error) {
	tools, err := convertOpenAITools(req.Tools)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	apiReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertOpenAIMessages(req.System, req.Messages),
		Tools:    tools,
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}
	return apiReq, nil
}

// convertOpenAIMessages maps session messages to the SDK's message array.
// The system prompt becomes the leading system message.
func convertOpenAIMessages(system string, messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		m := openai.ChatCompletionMessage{Role: string(msg.Role)}
		switch {
		case msg.Parts != nil:
			for _, part := range msg.Parts {
				if part.Type == "image" {
					m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
					})
					continue
				}
				m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		default:
			m.Content = msg.Content
		}

		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if msg.Role == models.RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		out = append(out, m)
	}
	return out
}

func convertOpenAITools(tools []agent.ToolSchema) ([]openai.Tool, error) {
	var out []openai.Tool
	for _, tool := range tools {
		var params map[string]interface{}
		if err := json.Unmarshal(tool.InputSchema, &params); err != nil {
			return nil, fmt.Errorf("openai: invalid schema for tool %s: %w", tool.Name, err)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}
