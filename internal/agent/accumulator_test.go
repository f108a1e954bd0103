package agent

import (
	"reflect"
	"testing"

	"github.com/jimihq/jimi/pkg/models"
)

func TestAccumulatorContentOnly(t *testing.T) {
	acc := NewAccumulator()
	for _, c := range []Chunk{
		contentChunk("Hi "),
		contentChunk("there."),
		doneChunk(&models.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10}),
	} {
		acc.Feed(c)
	}
	msg, dropped := acc.Finalize()
	if msg.Content != "Hi there." {
		t.Errorf("content = %q, want %q", msg.Content, "Hi there.")
	}
	if len(msg.ToolCalls) != 0 || len(dropped) != 0 {
		t.Errorf("unexpected tool calls: %v dropped %v", msg.ToolCalls, dropped)
	}
	if acc.Usage() == nil || acc.Usage().TotalTokens != 10 {
		t.Errorf("usage = %+v, want total 10", acc.Usage())
	}
}

func TestAccumulatorReasoningExcluded(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed(Chunk{Kind: ChunkContent, Text: "thinking...", Reasoning: true})
	acc.Feed(contentChunk("answer"))
	msg, _ := acc.Finalize()
	if msg.Content != "answer" {
		t.Errorf("content = %q, want reasoning excluded", msg.Content)
	}
}

func TestAccumulatorSplitToolCall(t *testing.T) {
	acc := NewAccumulator()
	for _, c := range []Chunk{
		toolChunk("c1", "read_file", `{"pa`),
		toolChunk("c1", "", `th":"a`),
		toolChunk("", "", `.txt"}`),
		doneChunk(nil),
	} {
		acc.Feed(c)
	}
	msg, dropped := acc.Finalize()
	want := []models.ToolCall{{ID: "c1", Name: "read_file", Arguments: `{"path":"a.txt"}`}}
	if !reflect.DeepEqual(msg.ToolCalls, want) {
		t.Errorf("tool calls = %+v, want %+v", msg.ToolCalls, want)
	}
	if len(dropped) != 0 {
		t.Errorf("dropped = %+v, want none", dropped)
	}
	if msg.Content != "" {
		t.Errorf("content = %q, want empty", msg.Content)
	}
}

func TestAccumulatorMultipleCalls(t *testing.T) {
	acc := NewAccumulator()
	for _, c := range []Chunk{
		toolChunk("c1", "read_file", `{"path":"a"}`),
		toolChunk("c2", "read_file", `{"path":"b"}`),
		doneChunk(nil),
	} {
		acc.Feed(c)
	}
	msg, _ := acc.Finalize()
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("got %d calls, want 2", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ID != "c1" || msg.ToolCalls[1].ID != "c2" {
		t.Errorf("call order = %s, %s", msg.ToolCalls[0].ID, msg.ToolCalls[1].ID)
	}
}

func TestAccumulatorSynthesisesTempID(t *testing.T) {
	acc := NewAccumulator()
	// Arguments arrive before any id: data must not be lost.
	acc.Feed(toolChunk("", "", `{"x":`))
	acc.Feed(toolChunk("", "lookup", `1}`))
	acc.Feed(doneChunk(nil))
	msg, _ := acc.Finalize()
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d calls, want 1", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ID != "temp_1" {
		t.Errorf("id = %q, want temp_1", call.ID)
	}
	if call.Name != "lookup" || call.Arguments != `{"x":1}` {
		t.Errorf("call = %+v", call)
	}
}

func TestAccumulatorRealIDReplacesTemp(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed(toolChunk("", "lookup", `{"x":`))
	// A later chunk supplies the real id with no name: the call in flight
	// adopts it without restarting.
	acc.Feed(toolChunk("call_9", "", `1}`))
	acc.Feed(doneChunk(nil))
	msg, _ := acc.Finalize()
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d calls, want 1: %+v", len(msg.ToolCalls), msg.ToolCalls)
	}
	call := msg.ToolCalls[0]
	if call.ID != "call_9" || call.Arguments != `{"x":1}` {
		t.Errorf("call = %+v, want adopted id with full args", call)
	}
}

func TestAccumulatorDropsNamelessCall(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed(toolChunk("", "", `{"orphan":true}`))
	acc.Feed(doneChunk(nil))
	msg, dropped := acc.Finalize()
	if len(msg.ToolCalls) != 0 {
		t.Errorf("tool calls = %+v, want none", msg.ToolCalls)
	}
	if len(dropped) != 1 || dropped[0].Arguments != `{"orphan":true}` {
		t.Errorf("dropped = %+v, want the nameless partial", dropped)
	}
}

func TestAccumulatorLateNameFill(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed(toolChunk("c1", "", `{"a"`))
	acc.Feed(toolChunk("c1", "write_file", `:1}`))
	msg, _ := acc.Finalize()
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "write_file" {
		t.Errorf("calls = %+v, want name filled in place", msg.ToolCalls)
	}
}

// Property 4: streamed reassembly matches the non-streaming equivalent.
func TestAccumulatorMatchesNonStreaming(t *testing.T) {
	content := "I will read the file now."
	args := `{"path":"main.go"}`

	acc := NewAccumulator()
	for _, r := range content {
		acc.Feed(contentChunk(string(r)))
	}
	for i := 0; i < len(args); i += 3 {
		end := i + 3
		if end > len(args) {
			end = len(args)
		}
		acc.Feed(toolChunk("c1", "read_file", args[i:end]))
	}
	acc.Feed(doneChunk(nil))
	streamed, _ := acc.Finalize()

	direct := models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		ToolCalls: []models.ToolCall{{ID: "c1", Name: "read_file", Arguments: args}},
	}
	if !reflect.DeepEqual(streamed, direct) {
		t.Errorf("streamed = %+v\ndirect = %+v", streamed, direct)
	}
}
