package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jimihq/jimi/internal/agent"
)

// ReadFileTool reads files inside the working directory.
type ReadFileTool struct {
	cfg Config
}

// NewReadFileTool creates a read_file tool scoped to cfg.Workdir.
func NewReadFileTool(cfg Config) *ReadFileTool {
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = defaultMaxReadBytes
	}
	return &ReadFileTool{cfg: cfg}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the working directory, optionally from a byte offset."
}

func (t *ReadFileTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file, relative to the working directory.",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Byte offset to start reading from (default 0).",
				"minimum":     0,
			},
			"max_bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum bytes to read (capped by the tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"path"},
	})
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError("invalid parameters: %v", err), nil
	}
	if input.Offset < 0 {
		return toolError("offset must be >= 0"), nil
	}

	resolved, err := t.cfg.resolve(input.Path)
	if err != nil {
		return toolError("%v", err), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return toolError("open file: %v", err), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return toolError("stat file: %v", err), nil
	}
	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return toolError("seek file: %v", err), nil
		}
	}

	limit := t.cfg.MaxReadBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return toolError("read file: %v", err), nil
	}

	res := &agent.ToolResult{Output: string(buf)}
	if input.Offset+int64(len(buf)) < info.Size() {
		res.Message = fmt.Sprintf("Truncated at %d of %d bytes. Use offset to read more.",
			input.Offset+int64(len(buf)), info.Size())
	}
	return res, nil
}
