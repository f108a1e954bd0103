package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jimihq/jimi/internal/session"
	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

// fakeProvider replays scripted chunk sequences, one per Stream call.
// A script entry with Err set terminates that stream with the error.
type fakeProvider struct {
	mu      sync.Mutex
	scripts [][]Chunk
	call    int

	completeText string
	completeErr  error

	maxContext int
	delay      time.Duration
	requests   []*Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) MaxContextSize() int {
	if p.maxContext > 0 {
		return p.maxContext
	}
	return 200_000
}

func (p *fakeProvider) Complete(ctx context.Context, req *Request) (models.Message, *models.Usage, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.completeErr != nil {
		return models.Message{}, nil, p.completeErr
	}
	return models.Message{Role: models.RoleAssistant, Content: p.completeText}, nil, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if p.call >= len(p.scripts) {
		p.mu.Unlock()
		return nil, errors.New("fake provider: no script for call")
	}
	script := p.scripts[p.call]
	p.call++
	p.mu.Unlock()

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, c := range script {
			if p.delay > 0 {
				time.Sleep(p.delay)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func contentChunk(text string) Chunk {
	return Chunk{Kind: ChunkContent, Text: text}
}

func toolChunk(id, name, args string) Chunk {
	return Chunk{Kind: ChunkToolCall, ToolCallID: id, ToolName: name, ArgumentsDelta: args}
}

func doneChunk(usage *models.Usage) Chunk {
	return Chunk{Kind: ChunkDone, Usage: usage}
}

// echoTool returns its "text" argument.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes the given text." }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
}
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	return &ToolResult{Output: args.Text}, nil
}

// failTool always reports an errored execution.
type failTool struct{}

func (failTool) Name() string            { return "fail" }
func (failTool) Description() string     { return "Always fails." }
func (failTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (failTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Output: "boom", IsError: true}, nil
}

// guardedTool requires approval and records whether it ran.
type guardedTool struct {
	mu  sync.Mutex
	ran int
}

func (*guardedTool) Name() string            { return "guarded" }
func (*guardedTool) Description() string     { return "A privileged operation." }
func (*guardedTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (*guardedTool) RequiresApproval() bool  { return true }
func (g *guardedTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	g.mu.Lock()
	g.ran++
	g.mu.Unlock()
	return &ToolResult{Output: "done"}, nil
}

func (g *guardedTool) runs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ran
}

// slowTool blocks until its context is cancelled.
type slowTool struct{}

func (slowTool) Name() string            { return "slow" }
func (slowTool) Description() string     { return "Never finishes." }
func (slowTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (slowTool) Timeout() time.Duration  { return 50 * time.Millisecond }
func (slowTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// drain collects every event published until the bus closes or the timeout
// elapses. Callers close the bus when the run is over.
func drain(sub *wire.Subscriber, timeout time.Duration) []models.Event {
	var events []models.Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-deadline:
			return events
		}
	}
}

func eventsOfType(events []models.Event, t models.EventType) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// autoApprove answers every approval prompt on the subscriber with reply.
func autoApprove(sub *wire.Subscriber, reply models.ApprovalReply) {
	go func() {
		for e := range sub.C() {
			if e.Type == models.EventApprovalRequested {
				e.Approval.Reply <- reply
			}
		}
	}()
}

func memStore() *session.Context {
	store, _ := session.Open("")
	return store
}
