package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Tool defines the interface for executable agent tools.
//
// Standard tools are registered at construction; the Task tool and
// MCP-bridged tools are registered at runtime.
type Tool interface {
	// Name returns the function name exposed to the LLM.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Cancellation arrives through ctx; the
	// dispatcher wraps the call with the tool's timeout.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ApprovalRequirer is implemented by tools whose execution is privileged.
// The approval gate prompts before each call unless the session has been
// promoted or yolo mode is on.
type ApprovalRequirer interface {
	RequiresApproval() bool
}

// TimeoutOverrider is implemented by tools that need a deadline other than
// the dispatcher default.
type TimeoutOverrider interface {
	Timeout() time.Duration
}

// ToolResult is the outcome of one tool execution. The model sees
// Output + "\n\n" + Message, both halves optional.
type ToolResult struct {
	// Output is the tool's primary textual output.
	Output string `json:"output"`

	// Message is an auxiliary note appended after the output.
	Message string `json:"message,omitempty"`

	// IsError marks a failed execution; the content is still fed back to
	// the model so it can correct itself.
	IsError bool `json:"is_error,omitempty"`
}

// Registry maps function names to tools and produces the schema catalog
// offered to the LLM.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool for name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SchemasFor returns the function-calling schema list for the agent's tool
// filter: allowed minus excluded, ordered lexicographically by name. A nil
// allowed set means every registered tool.
func (r *Registry) SchemasFor(allowed, excluded map[string]struct{}) []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		if allowed != nil {
			if _, ok := allowed[n]; !ok {
				continue
			}
		}
		if _, ok := excluded[n]; ok {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	schemas := make([]ToolSchema, 0, len(names))
	for _, n := range names {
		t := r.tools[n]
		schemas = append(schemas, ToolSchema{
			Name:        n,
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return schemas
}
