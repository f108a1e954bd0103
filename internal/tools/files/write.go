package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jimihq/jimi/internal/agent"
)

// WriteFileTool writes files inside the working directory. Writes are
// destructive, so the tool requires user approval.
type WriteFileTool struct {
	cfg Config
}

// NewWriteFileTool creates a write_file tool scoped to cfg.Workdir.
func NewWriteFileTool(cfg Config) *WriteFileTool {
	return &WriteFileTool{cfg: cfg}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the working directory, overwriting any existing file."
}

func (t *WriteFileTool) RequiresApproval() bool { return true }

func (t *WriteFileTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to write, relative to the working directory.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "File contents to write.",
			},
			"append": map[string]interface{}{
				"type":        "boolean",
				"description": "Append instead of overwrite (default false).",
			},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError("invalid parameters: %v", err), nil
	}

	resolved, err := t.cfg.resolve(input.Path)
	if err != nil {
		return toolError("%v", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError("create directory: %v", err), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return toolError("open file: %v", err), nil
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return toolError("write file: %v", err), nil
	}
	return &agent.ToolResult{Output: fmt.Sprintf("Wrote %d bytes to %s", n, input.Path)}, nil
}
