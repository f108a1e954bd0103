package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jimihq/jimi/internal/session"
	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

const (
	// defaultToolTimeout bounds a single tool execution unless the tool
	// overrides it.
	defaultToolTimeout = 600 * time.Second

	// maxOutputChars bounds the total output fed back to the model.
	maxOutputChars = 50_000

	// maxLineChars bounds any single output line.
	maxLineChars = 2000

	// previewChars is how much of a successful output the UI preview shows.
	previewChars = 100

	// truncationMarker replaces data beyond the truncation boundary.
	truncationMarker = "[...truncated]"

	// repeatedErrorLimit is how many consecutive identical failures flag
	// the loop for termination.
	repeatedErrorLimit = 3

	// coachingHint is appended to the final repeated-error message so the
	// model changes approach instead of retrying forever.
	coachingHint = "You have made the same failing call repeatedly. Stop retrying this exact call and change strategy: re-read the error, try different arguments, or use another tool."
)

// Dispatcher executes the tool calls of one assistant message serially,
// publishing lifecycle events per call and appending all tool messages to
// the context in a single batch at the end.
type Dispatcher struct {
	registry *Registry
	gate     *Gate
	bus      *wire.Bus
	store    *session.Context
	timeout  time.Duration
	tracker  errorTracker
}

// NewDispatcher wires a dispatcher to its collaborators.
func NewDispatcher(registry *Registry, gate *Gate, bus *wire.Bus, store *session.Context) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		gate:     gate,
		bus:      bus,
		store:    store,
		timeout:  defaultToolTimeout,
	}
}

// Run dispatches the calls in the order the LLM emitted them. It returns
// true when the loop should terminate because the model keeps repeating the
// same failing call.
func (d *Dispatcher) Run(ctx context.Context, step int, calls []models.ToolCall) (bool, error) {
	msgs := make([]models.Message, 0, len(calls))
	terminate := false

	for _, call := range calls {
		d.bus.Publish(models.Event{
			Type: models.EventToolCallAnnounce,
			Step: step,
			Tool: &models.ToolPayload{Call: call},
		})

		result := d.runOne(ctx, call)
		metricToolExecutions.WithLabelValues(call.Name, statusLabel(result.IsError)).Inc()

		content := formatResult(result)
		if result.IsError {
			if d.tracker.recordFailure(call.Signature()) {
				terminate = true
				content += "\n\n" + coachingHint
			}
		} else {
			d.tracker.reset()
			if preview := previewOf(result.Output); preview != "" {
				d.store.AddKeyInsight(fmt.Sprintf("%s: %s", call.Name, preview))
			}
		}

		d.bus.Publish(models.Event{
			Type: models.EventToolResult,
			Step: step,
			Tool: &models.ToolPayload{
				ToolCallID: call.ID,
				OK:         !result.IsError,
				Preview:    previewOf(result.Output),
				Message:    result.Message,
			},
		})
		msgs = append(msgs, models.ToolMessage(call.ID, content))
	}

	if err := d.store.Append(msgs...); err != nil {
		return terminate, fmt.Errorf("append tool results: %w", err)
	}
	return terminate, nil
}

// runOne validates, gates, and executes a single call, never returning a
// hard error: every failure mode becomes an errored result the model sees.
func (d *Dispatcher) runOne(ctx context.Context, call models.ToolCall) *ToolResult {
	tool, verr := d.validateCall(call)
	if verr != nil {
		slog.Warn("tool call rejected by validation", "tool", call.Name, "id", call.ID, "error", verr)
		return &ToolResult{Output: "Tool execution failed: " + verr.Message, IsError: true}
	}

	if d.gate.Check(ctx, tool, call) == Deny {
		return &ToolResult{Output: "Rejected by user", IsError: true}
	}

	timeout := d.timeout
	if t, ok := tool.(TimeoutOverrider); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}

	result, err := executeWithTimeout(ctx, tool, call, timeout)
	switch {
	case err == context.DeadlineExceeded:
		slog.Warn("tool execution timed out", "tool", call.Name, "timeout", timeout)
		return &ToolResult{Output: "Tool execution timed out", IsError: true}
	case err != nil:
		return &ToolResult{Output: "Tool execution failed: " + err.Error(), IsError: true}
	case result == nil:
		return &ToolResult{}
	default:
		result.Output = truncateOutput(result.Output)
		return result
	}
}

// executeWithTimeout runs the tool in its own goroutine so a stuck tool
// cannot wedge the dispatcher past its deadline.
func executeWithTimeout(ctx context.Context, tool Tool, call models.ToolCall, timeout time.Duration) (*ToolResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := call.Arguments
	if args == "" {
		args = "{}"
	}

	type outcome struct {
		result *ToolResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := tool.Execute(execCtx, json.RawMessage(args))
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, context.DeadlineExceeded
		}
		return nil, execCtx.Err()
	}
}

// formatResult builds the textual content fed back to the model:
// output + blank line + message, both halves optional.
func formatResult(r *ToolResult) string {
	switch {
	case r.Output != "" && r.Message != "":
		return r.Output + "\n\n" + r.Message
	case r.Output != "":
		return r.Output
	default:
		return r.Message
	}
}

func previewOf(output string) string {
	if len(output) > previewChars {
		return output[:previewChars]
	}
	return output
}

func statusLabel(isError bool) string {
	if isError {
		return "error"
	}
	return "ok"
}

// truncateOutput caps each line at maxLineChars and the whole output at
// maxOutputChars, marking every cut with the truncation marker. Output at
// exactly the limit passes untouched.
func truncateOutput(s string) string {
	if strings.ContainsRune(s, '\n') {
		lines := strings.Split(s, "\n")
		changed := false
		for i, line := range lines {
			if len(line) > maxLineChars {
				lines[i] = line[:maxLineChars] + truncationMarker
				changed = true
			}
		}
		if changed {
			s = strings.Join(lines, "\n")
		}
	}
	if len(s) > maxOutputChars {
		return s[:maxOutputChars] + truncationMarker
	}
	return s
}

// errorTracker remembers the signatures of recent consecutive failures.
type errorTracker struct {
	ring []string
}

// recordFailure appends a failing signature and reports whether the last
// repeatedErrorLimit failures all share it.
func (t *errorTracker) recordFailure(sig string) bool {
	t.ring = append(t.ring, sig)
	if len(t.ring) > repeatedErrorLimit {
		t.ring = t.ring[len(t.ring)-repeatedErrorLimit:]
	}
	if len(t.ring) < repeatedErrorLimit {
		return false
	}
	for _, s := range t.ring {
		if s != sig {
			return false
		}
	}
	return true
}

// reset clears the ring. Called on any successful execution.
func (t *errorTracker) reset() {
	t.ring = t.ring[:0]
}
