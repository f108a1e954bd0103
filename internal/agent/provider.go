package agent

import (
	"context"
	"encoding/json"

	"github.com/jimihq/jimi/pkg/models"
)

// Provider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of communicating with different LLM
// APIs (OpenAI-compatible, Anthropic) while presenting a unified chunk
// contract to the loop executor.
//
// Thread Safety:
// Implementations must be safe for concurrent use; a parent session and its
// sub-agents may call Stream simultaneously.
type Provider interface {
	// Name returns the provider name for logging.
	Name() string

	// MaxContextSize returns the model's context window in tokens. The
	// compactor triggers when the context estimate approaches this limit.
	MaxContextSize() int

	// Complete sends a request and returns the full assistant message at
	// once. Used by the compactor and /init, never by the main loop.
	Complete(ctx context.Context, req *Request) (models.Message, *models.Usage, error)

	// Stream sends a request and returns a channel of chunks. Chunks
	// arrive in temporal order; the final chunk has Kind ChunkDone.
	// Transport failures surface as a chunk with Err set, which also
	// terminates the stream.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// Request contains all parameters for one LLM call.
type Request struct {
	// System is the rendered system prompt.
	System string

	// Messages is the conversation history in chronological order.
	Messages []models.Message

	// Tools lists the function schemas offered to the model. An empty
	// list means the model is expected to emit content chunks only.
	Tools []ToolSchema

	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int
}

// ToolSchema is one entry of the OpenAI-style function-calling catalog.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ChunkKind discriminates the streaming chunk variants.
type ChunkKind int

const (
	// ChunkContent carries a text fragment, visible or reasoning.
	ChunkContent ChunkKind = iota

	// ChunkToolCall carries a tool-call fragment. Any of the id, name,
	// and arguments fields may be empty; the accumulator reassembles
	// complete calls from the fragment sequence.
	ChunkToolCall

	// ChunkDone terminates the stream, optionally carrying usage.
	ChunkDone
)

// Chunk is one incremental unit of a streaming LLM response.
type Chunk struct {
	Kind ChunkKind

	// Content fields.
	Text      string
	Reasoning bool

	// Tool-call fragment fields. Providers pass deltas through untouched;
	// reassembly quirks are the accumulator's concern.
	ToolCallID     string
	ToolName       string
	ArgumentsDelta string

	// Done fields.
	Usage *models.Usage

	// Err marks a fatal stream failure. No further chunks follow.
	Err error
}
