package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/jimihq/jimi/internal/session"
	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

// reservedTokens is the headroom kept free below the model's context
// window. Compaction runs once the estimate eats into this reserve.
const reservedTokens = 50_000

const summaryInstruction = "Summarise the conversation so far, preserving decisions, file paths touched, open questions, and the latest user intent."

// Compactor shrinks a near-full context by replacing everything after
// checkpoint 0 with a one-message summary plus the latest user turn.
type Compactor struct {
	provider Provider
	store    *session.Context
	bus      *wire.Bus
	forced   atomic.Bool
}

// NewCompactor wires a compactor to its collaborators.
func NewCompactor(provider Provider, store *session.Context, bus *wire.Bus) *Compactor {
	return &Compactor{provider: provider, store: store, bus: bus}
}

// Force requests a compaction at the next step regardless of token count.
func (c *Compactor) Force() {
	c.forced.Store(true)
}

// ShouldCompact reports whether the next step must compact first.
func (c *Compactor) ShouldCompact() bool {
	if c.forced.Load() {
		return true
	}
	return c.store.TokenCount() > c.provider.MaxContextSize()-reservedTokens
}

// Compact runs the procedure. Failure is not fatal: the context is left
// untouched and the next LLM call surfaces any size problem on its own.
func (c *Compactor) Compact(ctx context.Context, step int) {
	c.forced.Store(false)
	c.bus.Publish(models.Event{Type: models.EventCompactionBegin, Step: step})
	defer c.bus.Publish(models.Event{Type: models.EventCompactionEnd, Step: step})

	latestUser, hasUser := c.store.LatestUserMessage()

	summary, _, err := c.provider.Complete(ctx, &Request{
		System:   "You compress conversation transcripts for an AI coding assistant.",
		Messages: append(c.store.Snapshot(), models.Message{Role: models.RoleUser, Content: c.summaryPrompt()}),
	})
	if err != nil || strings.TrimSpace(summary.Text()) == "" {
		slog.Warn("compaction failed, leaving context untouched", "error", err)
		return
	}

	if err := c.store.RevertTo(0); err != nil {
		slog.Warn("compaction revert failed", "error", err)
		return
	}
	msgs := []models.Message{{Role: models.RoleAssistant, Content: summary.Text()}}
	if hasUser {
		msgs = append(msgs, latestUser)
	}
	if err := c.store.Append(msgs...); err != nil {
		slog.Warn("compaction append failed", "error", err)
		return
	}
	metricCompactions.Inc()
	slog.Info("context compacted", "tokens", c.store.TokenCount())
}

func (c *Compactor) summaryPrompt() string {
	var b strings.Builder
	b.WriteString(summaryInstruction)
	if insights := c.store.KeyInsights(); len(insights) > 0 {
		b.WriteString("\n\nKey insights from tool output:\n")
		for _, in := range insights {
			b.WriteString("- ")
			b.WriteString(in)
			b.WriteString("\n")
		}
	}
	return b.String()
}
