package session

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// Snapshot is the workspace state exposed to the system-prompt templater.
type Snapshot struct {
	AgentsMD  string
	WorkDirLS string
	Now       string
}

// LoadSnapshot reads the working directory once at session start: the
// AGENTS.md content (any case), a non-recursive listing, and the current
// time in ISO-8601. A missing AGENTS.md is not an error.
func LoadSnapshot(workdir string) (Snapshot, error) {
	snap := Snapshot{Now: time.Now().Format(time.RFC3339)}

	entries, err := os.ReadDir(workdir)
	if err != nil {
		return snap, fmt.Errorf("read workdir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)

		if !e.IsDir() && strings.EqualFold(e.Name(), "AGENTS.md") && snap.AgentsMD == "" {
			data, err := os.ReadFile(workdir + string(os.PathSeparator) + e.Name())
			if err != nil {
				slog.Warn("reading agents file failed", "file", e.Name(), "error", err)
				continue
			}
			snap.AgentsMD = string(data)
		}
	}
	sort.Strings(names)
	snap.WorkDirLS = strings.Join(names, "\n")
	return snap, nil
}

// PromptVars returns the snapshot as template variables.
func (s Snapshot) PromptVars() map[string]string {
	return map[string]string{
		"AGENTS_MD":   s.AgentsMD,
		"WORK_DIR_LS": s.WorkDirLS,
		"NOW":         s.Now,
	}
}
