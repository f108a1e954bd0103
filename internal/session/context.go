// Package session holds a session's conversation state: the append-only
// message context with checkpoints and token accounting, its JSON-lines
// history file, and the workspace snapshot fed to the system prompt.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jimihq/jimi/pkg/models"
)

var (
	// ErrCheckpointGone is returned by RevertTo for an unknown checkpoint id.
	ErrCheckpointGone = errors.New("checkpoint gone")

	// ErrHistoryCorrupt is returned when at least half of a non-empty
	// history file fails to parse. The session refuses to open.
	ErrHistoryCorrupt = errors.New("history corrupt")
)

// maxKeyInsights bounds the insight deque consumed by the compactor.
const maxKeyInsights = 5

// Context is the ordered conversation history of one session. All mutations
// serialise under one lock; appends are persisted to the history file before
// returning. Token counts are estimated at ceil(chars/4) unless the provider
// reports authoritative usage through UpdateTokenCount.
type Context struct {
	mu          sync.Mutex
	messages    []models.Message
	checkpoints []int
	tokenCount  int
	insights    []string
	hist        *historyFile
}

// Open constructs a context backed by the history file at path, restoring
// any messages already persisted there. An empty path yields a purely
// in-memory context (used by tests).
func Open(path string) (*Context, error) {
	c := &Context{}
	if path == "" {
		return c, nil
	}
	hist, msgs, err := openHistory(path)
	if err != nil {
		return nil, err
	}
	c.hist = hist
	c.messages = msgs
	for _, m := range msgs {
		c.tokenCount += estimateTokens(m)
	}
	return c, nil
}

// estimateTokens is the fallback token estimate for one message.
func estimateTokens(m models.Message) int {
	chars := m.EstimatedChars()
	return (chars + 3) / 4
}

// Append adds messages to the context atomically and persists them. The
// token count grows by the estimated size of the appended messages.
func (c *Context) Append(msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hist != nil {
		if err := c.hist.append(msgs); err != nil {
			return fmt.Errorf("persist messages: %w", err)
		}
	}
	c.messages = append(c.messages, msgs...)
	for _, m := range msgs {
		c.tokenCount += estimateTokens(m)
	}
	return nil
}

// Checkpoint records the current message count and returns the checkpoint id.
func (c *Context) Checkpoint() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checkpoints = append(c.checkpoints, len(c.messages))
	return len(c.checkpoints) - 1
}

// RevertTo truncates the context to the state recorded by checkpoint id,
// rewrites the history file, and recomputes the token count. Checkpoints
// created after id are discarded.
func (c *Context) RevertTo(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= len(c.checkpoints) {
		return fmt.Errorf("%w: id %d", ErrCheckpointGone, id)
	}
	n := c.checkpoints[id]
	if n > len(c.messages) {
		n = len(c.messages)
	}
	kept := c.messages[:n]
	if c.hist != nil {
		if err := c.hist.rewrite(kept); err != nil {
			return fmt.Errorf("rewrite history: %w", err)
		}
	}
	c.messages = append([]models.Message(nil), kept...)
	c.checkpoints = c.checkpoints[:id+1]
	c.tokenCount = 0
	for _, m := range c.messages {
		c.tokenCount += estimateTokens(m)
	}
	return nil
}

// UpdateTokenCount adjusts the token count by a provider-reported delta.
// Negative deltas are allowed; the count never goes below zero.
func (c *Context) UpdateTokenCount(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokenCount += delta
	if c.tokenCount < 0 {
		c.tokenCount = 0
	}
}

// TokenCount returns the current estimate.
func (c *Context) TokenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenCount
}

// Len returns the number of messages.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Snapshot returns a copy of the message sequence safe to read concurrently.
func (c *Context) Snapshot() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// Checkpoints returns a copy of the checkpoint markers.
func (c *Context) Checkpoints() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.checkpoints...)
}

// AddKeyInsight records a short extract from a successful tool output.
// The deque keeps the most recent maxKeyInsights entries.
func (c *Context) AddKeyInsight(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.insights = append(c.insights, text)
	if len(c.insights) > maxKeyInsights {
		c.insights = c.insights[len(c.insights)-maxKeyInsights:]
	}
}

// KeyInsights returns a copy of the insight deque, oldest first.
func (c *Context) KeyInsights() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.insights...)
}

// LatestUserMessage returns the most recent user-role message, if any.
func (c *Context) LatestUserMessage() (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == models.RoleUser {
			return c.messages[i], true
		}
	}
	return models.Message{}, false
}
