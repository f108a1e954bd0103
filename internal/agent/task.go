package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/jimihq/jimi/internal/session"
	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

// autoContinueThreshold is the minimum length of a useful sub-agent answer.
// Shorter final messages trigger one automatic continuation turn.
const autoContinueThreshold = 200

// TaskLauncher is the Task tool: it delegates a prompt to a declared
// sub-agent running in an isolated child session. The child gets its own
// context and history file next to the parent's, but shares the parent's
// event bus and approval gate. Only the child's final text surfaces to the
// parent; its messages never enter the parent context.
type TaskLauncher struct {
	provider      Provider
	registry      *Registry
	gate          *Gate
	bus           *wire.Bus
	spec          *Spec
	vars          map[string]string
	config        Config
	parentHistory string
	seq           atomic.Int64
}

// NewTaskLauncher builds the Task tool for a parent session. Register it
// only when the parent spec declares at least one sub-agent.
func NewTaskLauncher(provider Provider, registry *Registry, gate *Gate, bus *wire.Bus, spec *Spec, vars map[string]string, config Config, parentHistory string) *TaskLauncher {
	return &TaskLauncher{
		provider:      provider,
		registry:      registry,
		gate:          gate,
		bus:           bus,
		spec:          spec,
		vars:          vars,
		config:        config,
		parentHistory: parentHistory,
	}
}

// Name implements Tool.
func (t *TaskLauncher) Name() string { return "Task" }

// Description implements Tool.
func (t *TaskLauncher) Description() string {
	names := make([]string, 0, len(t.spec.Subagents))
	for name := range t.spec.Subagents {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Delegate a task to a specialised sub-agent. Available sub-agents:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, t.spec.Subagents[name].Description)
	}
	return b.String()
}

// Schema implements Tool.
func (t *TaskLauncher) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"description": {"type": "string", "description": "Short description of the delegated task"},
			"subagent_name": {"type": "string", "description": "Name of the sub-agent to run"},
			"prompt": {"type": "string", "description": "Full task prompt for the sub-agent"}
		},
		"required": ["description", "subagent_name", "prompt"]
	}`)
}

// Execute implements Tool. Child failures come back as errored results and
// never crash the parent loop.
func (t *TaskLauncher) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		Description  string `json:"description"`
		SubagentName string `json:"subagent_name"`
		Prompt       string `json:"prompt"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &ToolResult{Output: "Tool execution failed: bad Task arguments", IsError: true}, nil
	}

	sub, ok := t.spec.Subagents[args.SubagentName]
	if !ok {
		return &ToolResult{
			Output:  fmt.Sprintf("Tool execution failed: %v %q", ErrUnknownSubagent, args.SubagentName),
			IsError: true,
		}, nil
	}
	childSpec, err := sub.Resolve()
	if err != nil {
		return &ToolResult{Output: "Tool execution failed: " + err.Error(), IsError: true}, nil
	}

	n := t.seq.Add(1)
	childStore, err := session.Open(session.SubHistoryPath(t.parentHistory, int(n)))
	if err != nil {
		return &ToolResult{Output: "Tool execution failed: " + err.Error(), IsError: true}, nil
	}

	child := NewExecutor(t.provider, childStore, t.registry, t.gate, t.bus, childSpec, t.vars, t.config)
	slog.Info("launching sub-agent", "subagent", args.SubagentName, "task", args.Description)

	cause, err := child.Execute(ctx, []models.ContentPart{models.TextPart(args.Prompt)})
	if cause == models.DoneFatalError {
		return &ToolResult{Output: "Sub-agent failed: " + err.Error(), IsError: true}, nil
	}

	if len(finalAssistantText(childStore)) < autoContinueThreshold && cause == models.DoneNatural {
		if _, err := child.Execute(ctx, []models.ContentPart{models.TextPart("Please continue and provide more detail.")}); err != nil {
			slog.Warn("sub-agent continuation failed", "subagent", args.SubagentName, "error", err)
		}
	}

	output := assistantTranscript(childStore)
	if strings.TrimSpace(output) == "" {
		return &ToolResult{Output: "Sub-agent produced no output", IsError: true}, nil
	}
	return &ToolResult{Output: output}, nil
}

// finalAssistantText returns the text of the last assistant message.
func finalAssistantText(store *session.Context) string {
	msgs := store.Snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant {
			return msgs[i].Text()
		}
	}
	return ""
}

// assistantTranscript concatenates all assistant text the child produced.
func assistantTranscript(store *session.Context) string {
	var parts []string
	for _, m := range store.Snapshot() {
		if m.Role == models.RoleAssistant {
			if text := m.Text(); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
