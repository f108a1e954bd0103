package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jimihq/jimi/pkg/models"
)

// maxArgsDepth bounds nesting in tool arguments. Deeply nested documents
// are rejected before schema validation so a hostile payload cannot blow
// the stack.
const maxArgsDepth = 100

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// validateCall checks a tool call against the registry before execution:
// the id must be non-empty, the tool registered, the arguments well-formed
// JSON of bounded depth, and the schema's required fields present.
func (d *Dispatcher) validateCall(call models.ToolCall) (Tool, *ToolError) {
	if call.ID == "" {
		return nil, &ToolError{Kind: ToolErrorInvalidArgs, ToolName: call.Name, Message: "tool call has no id"}
	}
	tool, err := d.registry.Get(call.Name)
	if err != nil {
		return nil, &ToolError{Kind: ToolErrorInvalidArgs, ToolName: call.Name, ToolCallID: call.ID, Message: fmt.Sprintf("unknown tool %q", call.Name), Cause: err}
	}

	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	if depth := jsonDepth(args); depth > maxArgsDepth {
		return nil, &ToolError{Kind: ToolErrorInvalidArgs, ToolName: call.Name, ToolCallID: call.ID, Message: fmt.Sprintf("arguments nested %d levels deep, limit %d", depth, maxArgsDepth)}
	}
	var decoded any
	if err := json.Unmarshal([]byte(args), &decoded); err != nil {
		return nil, &ToolError{Kind: ToolErrorInvalidArgs, ToolName: call.Name, ToolCallID: call.ID, Message: "arguments are not valid JSON", Cause: err}
	}

	if schema := tool.Schema(); len(schema) > 0 {
		compiled, err := compileSchema(schema)
		if err != nil {
			return nil, &ToolError{Kind: ToolErrorInvalidArgs, ToolName: call.Name, ToolCallID: call.ID, Message: "tool schema does not compile", Cause: err}
		}
		if err := compiled.Validate(decoded); err != nil {
			return nil, &ToolError{Kind: ToolErrorInvalidArgs, ToolName: call.Name, ToolCallID: call.ID, Message: "arguments do not match schema", Cause: err}
		}
	}
	return tool, nil
}

// jsonDepth scans the raw document and returns its maximum bracket nesting,
// ignoring brackets inside string literals.
func jsonDepth(s string) int {
	depth, max := 0, 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				max = depth
			}
		case '}', ']':
			depth--
		}
	}
	return max
}
