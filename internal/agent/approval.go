package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

// Decision is the approval gate's verdict on a tool call.
type Decision string

const (
	// Allow lets the tool call execute.
	Allow Decision = "allow"
	// Deny blocks the tool call; the model sees "Rejected by user".
	Deny Decision = "deny"
)

// Gate mediates privileged tool calls. Non-privileged tools pass straight
// through. In yolo mode everything is auto-approved and no ApprovalRequested
// event is ever published. Otherwise the gate prompts through the bus and
// blocks until a subscriber replies; an approve_session reply promotes the
// function so the rest of the session skips the prompt.
type Gate struct {
	bus  *wire.Bus
	yolo bool

	mu      sync.Mutex
	allowed map[string]struct{}

	// promptMu serialises prompts so at most one ApprovalRequested is
	// outstanding regardless of subscriber count.
	promptMu sync.Mutex
}

// NewGate creates a gate publishing prompts on bus.
func NewGate(bus *wire.Bus, yolo bool) *Gate {
	return &Gate{bus: bus, yolo: yolo, allowed: make(map[string]struct{})}
}

// Yolo reports whether session-wide auto-approval is on.
func (g *Gate) Yolo() bool {
	return g.yolo
}

// Check decides whether call may execute. The tool's own declaration
// determines whether a prompt is needed at all. The wait for a reply is
// unbounded; only ctx cancellation interrupts it, which counts as a denial.
func (g *Gate) Check(ctx context.Context, tool Tool, call models.ToolCall) Decision {
	if g.yolo {
		return Allow
	}
	req, ok := tool.(ApprovalRequirer)
	if !ok || !req.RequiresApproval() {
		return Allow
	}

	g.mu.Lock()
	_, sessionAllowed := g.allowed[call.Name]
	g.mu.Unlock()
	if sessionAllowed {
		return Allow
	}

	g.promptMu.Lock()
	defer g.promptMu.Unlock()

	// Re-check after waiting for the prompt slot; an earlier prompt may
	// have promoted this function.
	g.mu.Lock()
	_, sessionAllowed = g.allowed[call.Name]
	g.mu.Unlock()
	if sessionAllowed {
		return Allow
	}

	reply := make(chan models.ApprovalReply, 1)
	g.bus.Publish(models.Event{
		Type: models.EventApprovalRequested,
		Approval: &models.ApprovalPayload{
			ToolCallID:  call.ID,
			Action:      call.Name,
			Description: fmt.Sprintf("Run %s with arguments: %s", call.Name, call.Arguments),
			Reply:       reply,
		},
	})

	select {
	case r := <-reply:
		switch r {
		case models.ReplyApproveSession:
			g.mu.Lock()
			g.allowed[call.Name] = struct{}{}
			g.mu.Unlock()
			return Allow
		case models.ReplyApprove:
			return Allow
		default:
			return Deny
		}
	case <-ctx.Done():
		return Deny
	}
}
