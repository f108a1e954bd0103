package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jimihq/jimi/pkg/models"
)

// historyFile mirrors a context's messages as JSON lines on disk. Appends
// are synced before returning; rewrites go through a temp file and rename.
type historyFile struct {
	path string
}

// openHistory creates the enclosing directory if needed and replays any
// existing file. Individual bad lines are logged and skipped; when at least
// half the non-blank lines of a non-empty file fail to parse the file is
// declared corrupt and opening fails.
func openHistory(path string) (*historyFile, []models.Message, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &historyFile{path: path}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var (
		msgs  []models.Message
		total int
		bad   int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++
		var m models.Message
		if err := json.Unmarshal(line, &m); err != nil {
			bad++
			slog.Warn("skipping unparseable history line", "path", path, "line", lineNo, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read history: %w", err)
	}
	if total > 0 && bad*2 >= total {
		return nil, nil, fmt.Errorf("%w: %d of %d lines unreadable in %s", ErrHistoryCorrupt, bad, total, path)
	}
	return &historyFile{path: path}, msgs, nil
}

// append writes the messages as JSON lines and syncs the file.
func (h *historyFile) append(msgs []models.Message) error {
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, m := range msgs {
		line, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write history: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}
	return f.Sync()
}

// rewrite replaces the file contents with the given messages via a temp
// file in the same directory followed by a rename.
func (h *historyFile) rewrite(msgs []models.Message) error {
	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	for _, m := range msgs {
		line, err := json.Marshal(m)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("encode message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp history: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush temp history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history: %w", err)
	}
	return os.Rename(tmpName, h.path)
}
