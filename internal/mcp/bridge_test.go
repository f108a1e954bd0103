package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeCaller struct {
	lastReq mcp.CallToolRequest
	resp    *mcp.CallToolResult
	err     error
}

func (f *fakeCaller) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastReq = req
	return f.resp, f.err
}

func remoteTool(name, desc string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}
}

func TestBridgedToolNaming(t *testing.T) {
	tool := newBridgedTool("search", remoteTool("lookup", "Looks things up."), &fakeCaller{})
	if tool.Name() != "mcp_search_lookup" {
		t.Errorf("name = %q", tool.Name())
	}
	if !tool.RequiresApproval() {
		t.Error("bridged tools must require approval")
	}

	var schema map[string]any
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("schema not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema = %v", schema)
	}
}

func TestBridgedToolExecute(t *testing.T) {
	caller := &fakeCaller{resp: &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "first"},
			mcp.TextContent{Type: "text", Text: "second"},
		},
	}}
	tool := newBridgedTool("search", remoteTool("lookup", ""), caller)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"go"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || res.Output != "first\nsecond" {
		t.Errorf("result = %+v", res)
	}
	if caller.lastReq.Params.Name != "lookup" {
		t.Errorf("remote name = %q, want unprefixed", caller.lastReq.Params.Name)
	}
}

func TestBridgedToolRemoteError(t *testing.T) {
	caller := &fakeCaller{resp: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "boom"}},
	}}
	tool := newBridgedTool("s", remoteTool("x", ""), caller)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || res.Output != "boom" {
		t.Errorf("result = %+v", res)
	}
}

func TestBridgedToolTransportError(t *testing.T) {
	tool := newBridgedTool("s", remoteTool("x", ""), &fakeCaller{err: errors.New("pipe closed")})
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("transport failure not marked as error")
	}
}
