// Package mcp bridges external MCP (Model Context Protocol) servers into
// the tool registry. Each configured server is launched as a subprocess
// speaking MCP over stdio; its tools register under the name
// mcp_<server>_<tool> so the model can tell local and bridged tools apart.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jimihq/jimi/internal/agent"
	"github.com/jimihq/jimi/internal/config"
)

const protocolVersion = "2024-11-05"

// caller is the slice of the MCP client the bridged tools need.
type caller interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Bridge owns the connections to all configured MCP servers.
type Bridge struct {
	clients []*client.Client
}

// Connect launches every configured server, lists its tools, and registers
// them with the registry. A server that fails to start is logged and
// skipped; one broken server should not take the session down.
func Connect(ctx context.Context, registry *agent.Registry, servers []config.MCPServer) *Bridge {
	b := &Bridge{}
	for _, srv := range servers {
		if err := b.connectServer(ctx, registry, srv); err != nil {
			slog.Warn("skipping MCP server", "server", srv.Name, "error", err)
		}
	}
	return b
}

// Close shuts down all server subprocesses.
func (b *Bridge) Close() {
	for _, c := range b.clients {
		if err := c.Close(); err != nil {
			slog.Debug("closing MCP client", "error", err)
		}
	}
	b.clients = nil
}

func (b *Bridge) connectServer(ctx context.Context, registry *agent.Registry, srv config.MCPServer) error {
	env := make([]string, 0, len(srv.Env))
	for k, v := range srv.Env {
		env = append(env, k+"="+v)
	}
	mcpClient, err := client.NewStdioMCPClient(srv.Command, env, srv.Args...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{Name: "jimi", Version: "1.0"}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	for _, remote := range listResp.Tools {
		registry.Register(newBridgedTool(srv.Name, remote, mcpClient))
	}
	b.clients = append(b.clients, mcpClient)
	slog.Info("connected MCP server",
		"server", srv.Name, "command", srv.Command, "tools", len(listResp.Tools))
	return nil
}

// bridgedTool adapts one remote MCP tool to the agent.Tool interface.
type bridgedTool struct {
	name        string
	description string
	schema      json.RawMessage
	remoteName  string
	client      caller
}

func newBridgedTool(server string, remote mcp.Tool, c caller) *bridgedTool {
	schema, err := json.Marshal(remote.InputSchema)
	if err != nil || len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	desc := remote.Description
	if desc == "" {
		desc = fmt.Sprintf("Tool %s provided by the %s MCP server.", remote.Name, server)
	}
	return &bridgedTool{
		name:        fmt.Sprintf("mcp_%s_%s", server, remote.Name),
		description: desc,
		schema:      schema,
		remoteName:  remote.Name,
		client:      c,
	}
}

func (t *bridgedTool) Name() string            { return t.name }
func (t *bridgedTool) Description() string     { return t.description }
func (t *bridgedTool) Schema() json.RawMessage { return t.schema }

// RequiresApproval is always true for bridged tools. jimi cannot know what
// an external server's tool does, so the user stays in the loop.
func (t *bridgedTool) RequiresApproval() bool { return true }

func (t *bridgedTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var args map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return &agent.ToolResult{Output: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.remoteName
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return &agent.ToolResult{Output: fmt.Sprintf("MCP call failed: %v", err), IsError: true}, nil
	}

	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	out := strings.Join(texts, "\n")
	if resp.IsError {
		if out == "" {
			out = "MCP tool reported an error without detail"
		}
		return &agent.ToolResult{Output: out, IsError: true}, nil
	}
	return &agent.ToolResult{Output: out}, nil
}
