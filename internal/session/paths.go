package session

import (
	"fmt"
	"path/filepath"
	"strings"
)

// HistoryPath returns the history file location for a session:
// <workdir>/.jimi/sessions/<sessionID>/history.jsonl.
func HistoryPath(workdir, sessionID string) string {
	return filepath.Join(workdir, ".jimi", "sessions", sessionID, "history.jsonl")
}

// SubHistoryPath derives the sibling history file for the n-th sub-agent
// spawned from the session whose history lives at parent.
func SubHistoryPath(parent string, n int) string {
	dir := filepath.Dir(parent)
	stem := strings.TrimSuffix(filepath.Base(parent), filepath.Ext(parent))
	return filepath.Join(dir, fmt.Sprintf("%s_sub_%d.jsonl", stem, n))
}
