// Package files provides the built-in filesystem tools: read_file,
// write_file, and list_dir. All paths resolve inside the session's working
// directory; escapes via .. or absolute paths outside it are rejected
// before any filesystem access happens.
package files

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jimihq/jimi/internal/agent"
)

// Config controls filesystem tool defaults.
type Config struct {
	// Workdir is the session working directory all paths resolve under.
	Workdir string

	// MaxReadBytes caps a single read_file call. Zero selects the default.
	MaxReadBytes int
}

const defaultMaxReadBytes = 200_000

// resolve returns an absolute, cleaned path inside the working directory.
func (c Config) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	root := c.Workdir
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workdir: %w", err)
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(rootAbs, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes working directory")
	}
	return target, nil
}

func toolError(format string, args ...interface{}) *agent.ToolResult {
	return &agent.ToolResult{Output: fmt.Sprintf(format, args...), IsError: true}
}

func mustSchema(schema map[string]interface{}) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
