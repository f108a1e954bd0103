package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jimihq/jimi/internal/agent"
)

// ListDirTool lists directory entries inside the working directory.
type ListDirTool struct {
	cfg Config
}

// NewListDirTool creates a list_dir tool scoped to cfg.Workdir.
func NewListDirTool(cfg Config) *ListDirTool {
	return &ListDirTool{cfg: cfg}
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory in the working directory."
}

func (t *ListDirTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list, relative to the working directory (default \".\").",
			},
		},
	})
}

func (t *ListDirTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError("invalid parameters: %v", err), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := t.cfg.resolve(input.Path)
	if err != nil {
		return toolError("%v", err), nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return toolError("read directory: %v", err), nil
	}

	var b strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			fmt.Fprintf(&b, "%s\t%d\n", name, info.Size())
			continue
		}
		fmt.Fprintf(&b, "%s\n", name)
	}
	if b.Len() == 0 {
		return &agent.ToolResult{Output: "(empty directory)"}, nil
	}
	return &agent.ToolResult{Output: strings.TrimRight(b.String(), "\n")}, nil
}
