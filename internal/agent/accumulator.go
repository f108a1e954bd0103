package agent

import (
	"fmt"
	"strings"

	"github.com/jimihq/jimi/pkg/models"
)

// Accumulator reassembles a streaming chunk sequence into one assistant
// message. Content fragments concatenate; tool-call fragments are rebuilt
// into complete calls, tolerating the provider quirks around missing ids
// and late-arriving names.
type Accumulator struct {
	content strings.Builder
	calls   []partialCall
	current *partialCall
	tempSeq int
	usage   *models.Usage
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Feed consumes one chunk. Reasoning content is excluded from the
// accumulated message; callers republish it on the bus separately.
func (a *Accumulator) Feed(c Chunk) {
	switch c.Kind {
	case ChunkContent:
		if !c.Reasoning {
			a.content.WriteString(c.Text)
		}
	case ChunkToolCall:
		a.feedToolCall(c)
	case ChunkDone:
		if c.Usage != nil {
			a.usage = c.Usage
		}
	}
}

func (a *Accumulator) feedToolCall(c Chunk) {
	switch {
	case a.current == nil:
		// First fragment. A missing id gets a synthetic one so argument
		// data is not lost.
		id := c.ToolCallID
		if id == "" {
			a.tempSeq++
			id = fmt.Sprintf("temp_%d", a.tempSeq)
		}
		a.current = &partialCall{id: id, name: c.ToolName}

	case c.ToolCallID != "" && c.ToolCallID != a.current.id:
		if strings.HasPrefix(a.current.id, "temp_") && c.ToolName == "" {
			// The provider finally supplied the real id for the call in
			// flight. Adopt it without restarting.
			a.current.id = c.ToolCallID
		} else {
			a.calls = append(a.calls, *a.current)
			a.current = &partialCall{id: c.ToolCallID, name: c.ToolName}
		}

	default:
		// Continuation of the current call.
		if c.ToolName != "" && a.current.name == "" {
			a.current.name = c.ToolName
		}
	}
	a.current.args.WriteString(c.ArgumentsDelta)
}

// Usage returns the provider-reported usage from the Done chunk, if any.
func (a *Accumulator) Usage() *models.Usage {
	return a.usage
}

// Finalize closes any open partial and returns the assistant message plus
// the calls that had to be dropped for lacking a function name. Dropped
// calls cannot be executed; callers record them as errored tool results.
func (a *Accumulator) Finalize() (models.Message, []models.ToolCall) {
	if a.current != nil {
		a.calls = append(a.calls, *a.current)
		a.current = nil
	}

	msg := models.Message{Role: models.RoleAssistant, Content: a.content.String()}
	var dropped []models.ToolCall
	for i := range a.calls {
		pc := &a.calls[i]
		call := models.ToolCall{ID: pc.id, Name: pc.name, Arguments: pc.args.String()}
		if pc.name == "" {
			dropped = append(dropped, call)
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg, dropped
}
