// Package shell provides the run_shell tool. Commands execute through
// sh -c in the session working directory and always require user approval.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jimihq/jimi/internal/agent"
)

const defaultTimeout = 2 * time.Minute

// RunShellTool executes shell commands.
type RunShellTool struct {
	workdir string
	timeout time.Duration
}

// NewRunShellTool creates a run_shell tool rooted at workdir.
func NewRunShellTool(workdir string) *RunShellTool {
	return &RunShellTool{workdir: workdir, timeout: defaultTimeout}
}

func (t *RunShellTool) Name() string { return "run_shell" }

func (t *RunShellTool) Description() string {
	return "Run a shell command in the working directory and return its output."
}

func (t *RunShellTool) RequiresApproval() bool { return true }

// Timeout caps command runtime below the dispatcher's tool timeout.
func (t *RunShellTool) Timeout() time.Duration { return t.timeout }

func (t *RunShellTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (default 120).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *RunShellTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Output: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return &agent.ToolResult{Output: "command is required", IsError: true}, nil
	}

	if input.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var b strings.Builder
	if stdout.Len() > 0 {
		b.Write(stdout.Bytes())
	}
	if stderr.Len() > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stderr:\n")
		b.Write(stderr.Bytes())
	}

	res := &agent.ToolResult{Output: b.String()}
	switch {
	case ctx.Err() != nil:
		res.IsError = true
		res.Message = "Command timed out."
	case runErr != nil:
		res.IsError = true
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			res.Message = fmt.Sprintf("Exit code %d.", exitErr.ExitCode())
		} else {
			res.Message = runErr.Error()
		}
	}
	return res, nil
}
